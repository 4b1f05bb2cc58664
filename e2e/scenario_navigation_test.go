package e2e

import (
	"afterglow/repositories"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/suite"
)

type testNavigationSuite struct {
	BaseAppSuite
}

func TestNavigationSuite(t *testing.T) {
	suite.Run(t, &testNavigationSuite{})
}

func (s *testNavigationSuite) TestCounterRoutesAreRemountedFresh() {
	app := s.StartApp(repositories.NewMemoryHistory(), "a")

	s.Step(app, "Step 1: Initial route is mounted", func() {
		s.EventuallyAt(app, "a")
		s.EventuallyShows(app, "0+-reset")
		s.Require().Equal(uint64(1), app.Monitor.GetLatest().Mounts)
	})

	s.Step(app, "Step 2: Increment the counter", func() {
		s.Click(app, "add")
		s.EventuallyShows(app, "1+-reset")
	})

	s.Step(app, "Step 3: Navigate to b, a is ejected first", func() {
		s.Require().NoError(app.Router.Navigate("b"))
		s.EventuallyAt(app, "b")
		s.Require().Equal(uint64(1), app.Monitor.GetLatest().Ejects)
		s.Require().Eventually(func() bool {
			return s.Element(app).Tree().Attrs["data-counter"] == "b"
		}, s.Config.Settle, 5*time.Millisecond)
		s.EventuallyShows(app, "0+-reset")
		s.Require().Eventually(func() bool { return app.History.Len() == 2 }, s.Config.Settle, 5*time.Millisecond)
	})

	s.Step(app, "Step 4: Back to a shows a fresh counter", func() {
		s.Require().True(app.History.Back())
		s.EventuallyAt(app, "a")
		s.Require().Eventually(func() bool {
			tree := s.Element(app).Tree()
			return tree.Attrs["data-counter"] == "a" && strings.HasPrefix(tree.TextContent(), "0")
		}, s.Config.Settle, 5*time.Millisecond)
		// popstate does not push a new entry
		s.Require().Equal(2, app.History.Len())
	})

	s.Step(app, "Step 5: Unknown route keeps a mounted", func() {
		_, before, _ := app.Router.Current()
		s.Require().NoError(app.Router.Navigate("missing"))
		s.Require().Eventually(func() bool {
			return app.Monitor.GetLatest().RouteMisses >= 1
		}, s.Config.Settle, 5*time.Millisecond)
		path, after, mounted := app.Router.Current()
		s.Require().True(mounted)
		s.Require().Equal("a", path)
		s.Require().Same(before, after)
	})
}

func (s *testNavigationSuite) TestBusSiblingsStayInSync() {
	app := s.StartApp(nil, "bus")

	s.Step(app, "Step 1: Both siblings register on the bus", func() {
		s.EventuallyAt(app, "bus")
		s.Require().Eventually(func() bool {
			tree := s.Element(app).Tree()
			local, _ := tree.Find("local")
			remote, _ := tree.Find("remote")
			return local.Attrs["data-bus"] == "ready" && remote.Attrs["data-bus"] == "ready"
		}, s.Config.Settle, 5*time.Millisecond)
	})

	s.Step(app, "Step 2: A local click bumps both values", func() {
		s.Click(app, "add-up")
		s.Require().Eventually(func() bool {
			return strings.Count(s.Element(app).Text(), "value is: 1") == 2
		}, s.Config.Settle, 5*time.Millisecond)
	})

	s.Step(app, "Step 3: Leaving the route tears the bus down", func() {
		s.Require().NoError(app.Router.Navigate("a"))
		s.EventuallyAt(app, "a")
		s.EventuallyShows(app, "0+-reset")
	})
}

func (s *testNavigationSuite) TestHistoryResumesFromBadger() {
	dir := s.T().TempDir()
	open := func() *badger.DB {
		db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
		s.Require().NoError(err)
		return db
	}

	db := open()
	first := s.StartApp(repositories.NewHistoryRepository(db, s.log), "a")
	s.Step(first, "Step 1: Navigate a then b", func() {
		s.EventuallyAt(first, "a")
		s.Require().NoError(first.Router.Navigate("b"))
		s.EventuallyAt(first, "b")
		s.Require().Eventually(func() bool { return first.History.Len() == 2 }, s.Config.Settle, 5*time.Millisecond)
	})
	s.StopApp(first)
	s.Require().NoError(db.Close())

	db = open()
	defer func() { _ = db.Close() }()
	second := s.StartApp(repositories.NewHistoryRepository(db, s.log), "")
	s.Step(second, "Step 2: A new run sees the stored entries", func() {
		// the empty initial path has no route
		s.Require().Eventually(func() bool {
			return second.Monitor.GetLatest().RouteMisses == 1
		}, s.Config.Settle, 5*time.Millisecond)
		s.Require().Equal(2, second.History.Len())
		current, ok := second.History.Current()
		s.Require().True(ok)
		s.Require().Equal("b", current.URL)
	})

	s.Step(second, "Step 3: Back walks into the previous run", func() {
		s.Require().True(second.History.Back())
		s.EventuallyAt(second, "a")
		s.EventuallyShows(second, "0+-reset")
	})
	s.StopApp(second)
}
