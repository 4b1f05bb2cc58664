package domain

import (
	"afterglow/errors"
	"encoding/json"
	"fmt"
	"time"
)

// NavState is the record attached to every history entry the router pushes.
type NavState struct {
	Path string `json:"path"`
}

func (s NavState) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeNavState reads the record back from a native navigation event. A payload
// that is not a JSON object with a string "path" is rejected.
func DecodeNavState(raw []byte) (NavState, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return NavState{}, fmt.Errorf("%w: %v", errors.ErrInvalidNavState, err)
	}
	rawPath, ok := probe["path"]
	if !ok {
		return NavState{}, fmt.Errorf("%w: missing path", errors.ErrInvalidNavState)
	}
	var s NavState
	if err := json.Unmarshal(rawPath, &s.Path); err != nil {
		return NavState{}, fmt.Errorf("%w: path is not a string", errors.ErrInvalidNavState)
	}
	return s, nil
}

type RouteEventKind int

const (
	// RouteManual is a navigation requested by the application.
	RouteManual RouteEventKind = iota
	// RouteNative is a navigation reported by the host (back/forward).
	RouteNative
)

func (k RouteEventKind) String() string {
	switch k {
	case RouteManual:
		return "manual"
	case RouteNative:
		return "native"
	default:
		return "unknown"
	}
}

type RouteEvent struct {
	Kind  RouteEventKind
	Path  string
	State []byte
}

func ManualRoute(path string) RouteEvent {
	return RouteEvent{Kind: RouteManual, Path: path}
}

func NativeRoute(state []byte) RouteEvent {
	return RouteEvent{Kind: RouteNative, State: state}
}

// HistoryEntry is one persisted step of the navigation history.
type HistoryEntry struct {
	Seq   uint64    `json:"seq"`
	State []byte    `json:"state"`
	URL   string    `json:"url"`
	At    time.Time `json:"at"`
}
