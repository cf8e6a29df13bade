package sync_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peakfit/relay/internal/adapters/sync"
	"github.com/peakfit/relay/internal/domain/model"
	"github.com/peakfit/relay/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// academyServer is a minimal academy-room endpoint: it acknowledges the
// join and then replays the queued events.
type academyServer struct {
	srv       *httptest.Server
	events    []model.SyncEvent
	reject    bool
	dropJoin  bool
	dropAfter bool

	mu    stdsync.Mutex
	joins []string
}

func newAcademyServer() *academyServer {
	a := &academyServer{}
	upgrader := websocket.Upgrader{}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join frame
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		if join.Event != "join-academy" {
			return
		}
		var credential string
		_ = json.Unmarshal(join.Data, &credential)
		a.mu.Lock()
		a.joins = append(a.joins, credential)
		a.mu.Unlock()

		if a.reject {
			_ = conn.WriteJSON(frame{Event: "error"})
			return
		}
		if a.dropJoin {
			return
		}

		ack, _ := json.Marshal(map[string]int64{"academyId": 1})
		if err := conn.WriteJSON(frame{Event: "joined", Data: ack}); err != nil {
			return
		}
		for _, ev := range a.events {
			data, _ := json.Marshal(ev)
			if err := conn.WriteJSON(frame{Event: "assignments-updated", Data: data}); err != nil {
				return
			}
		}
		if a.dropAfter {
			// Flaky transport: the room was joined, then the connection dies.
			time.Sleep(10 * time.Millisecond)
			return
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return a
}

func (a *academyServer) url() string {
	return "ws" + strings.TrimPrefix(a.srv.URL, "http")
}

func (a *academyServer) joinCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.joins)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestChannelJoin(t *testing.T) {
	Convey("Given an academy-room server", t, func() {
		server := newAcademyServer()
		defer server.srv.Close()

		received := make(chan model.SyncEvent, 8)
		handler := func(ev model.SyncEvent) { received <- ev }

		Convey("Connect joins the room with the injected credential", func() {
			server.events = []model.SyncEvent{
				{Date: "2026-08-31", TimeSlot: model.Morning, Action: "assigned"},
			}
			c := sync.NewChannel(server.url(), "token-123", handler, sync.WithRetryDelay(10*time.Millisecond))
			So(c.Connect(context.Background()), ShouldBeNil)
			defer c.Disconnect()

			So(eventually(func() bool { return c.State() == sync.StateJoined }), ShouldBeTrue)

			var ev model.SyncEvent
			select {
			case ev = <-received:
			case <-time.After(3 * time.Second):
			}
			So(ev.Date, ShouldEqual, "2026-08-31")
			So(ev.TimeSlot, ShouldEqual, model.Morning)
			So(ev.Action, ShouldEqual, "assigned")

			server.mu.Lock()
			So(server.joins, ShouldResemble, []string{"token-123"})
			server.mu.Unlock()
		})

		Convey("Without a credential Connect is a no-op", func() {
			c := sync.NewChannel(server.url(), "", handler)
			So(c.Connect(context.Background()), ShouldBeNil)

			time.Sleep(50 * time.Millisecond)
			So(c.State(), ShouldEqual, sync.StateDisconnected)
			So(server.joinCount(), ShouldEqual, 0)
		})

		Convey("Connect while connected is a no-op", func() {
			c := sync.NewChannel(server.url(), "token-123", handler, sync.WithRetryDelay(10*time.Millisecond))
			So(c.Connect(context.Background()), ShouldBeNil)
			defer c.Disconnect()
			So(eventually(func() bool { return c.State() == sync.StateJoined }), ShouldBeTrue)

			So(c.Connect(context.Background()), ShouldBeNil)
			So(eventually(func() bool { return server.joinCount() == 1 }), ShouldBeTrue)
		})

		Convey("Disconnect tears down and is idempotent", func() {
			c := sync.NewChannel(server.url(), "token-123", handler, sync.WithRetryDelay(10*time.Millisecond))
			So(c.Connect(context.Background()), ShouldBeNil)
			So(eventually(func() bool { return c.State() == sync.StateJoined }), ShouldBeTrue)

			c.Disconnect()
			So(c.State(), ShouldEqual, sync.StateDisconnected)
			c.Disconnect()
			So(c.State(), ShouldEqual, sync.StateDisconnected)
		})
	})
}

func TestChannelRetry(t *testing.T) {
	Convey("Given an unreachable endpoint", t, func() {
		server := newAcademyServer()
		url := server.url()
		server.srv.Close()

		c := sync.NewChannel(url, "token-123", nil,
			sync.WithRetryDelay(5*time.Millisecond),
			sync.WithMaxRetries(3),
			sync.WithDialTimeout(200*time.Millisecond))

		Convey("The channel retries up to the ceiling and then fails terminally", func() {
			So(c.Connect(context.Background()), ShouldBeNil)
			So(eventually(func() bool { return c.State() == sync.StateFailed }), ShouldBeTrue)

			Convey("And stays failed without an explicit reconnect", func() {
				time.Sleep(50 * time.Millisecond)
				So(c.State(), ShouldEqual, sync.StateFailed)
			})
		})
	})

	Convey("Given a server that rejects the join", t, func() {
		server := newAcademyServer()
		server.reject = true
		defer server.srv.Close()

		c := sync.NewChannel(server.url(), "bad-token", nil,
			sync.WithRetryDelay(5*time.Millisecond),
			sync.WithMaxRetries(2))

		Convey("Rejections burn retry attempts until the channel fails", func() {
			So(c.Connect(context.Background()), ShouldBeNil)
			So(eventually(func() bool { return c.State() == sync.StateFailed }), ShouldBeTrue)
			So(server.joinCount(), ShouldEqual, 2)
		})
	})

	Convey("Given a server that drops connections after the join", t, func() {
		server := newAcademyServer()
		server.dropJoin = true
		defer server.srv.Close()

		c := sync.NewChannel(server.url(), "token-123", nil,
			sync.WithRetryDelay(5*time.Millisecond),
			sync.WithMaxRetries(3),
			sync.WithDialTimeout(time.Second))

		Convey("Each drop counts against the reconnect budget", func() {
			So(c.Connect(context.Background()), ShouldBeNil)
			So(eventually(func() bool { return c.State() == sync.StateFailed }), ShouldBeTrue)
			So(server.joinCount(), ShouldEqual, 3)
		})
	})

	Convey("Given a server that drops every connection after a successful join", t, func() {
		server := newAcademyServer()
		server.dropAfter = true
		defer server.srv.Close()

		c := sync.NewChannel(server.url(), "token-123", nil,
			sync.WithRetryDelay(5*time.Millisecond),
			sync.WithMaxRetries(2),
			sync.WithDialTimeout(time.Second))

		Convey("Recovered outages do not accumulate toward the ceiling", func() {
			So(c.Connect(context.Background()), ShouldBeNil)
			defer c.Disconnect()

			// Many more drops than the ceiling allows for consecutive
			// failures; each rejoin restores the full allowance.
			So(eventually(func() bool { return server.joinCount() >= 5 }), ShouldBeTrue)
			So(c.State(), ShouldNotEqual, sync.StateFailed)
		})
	})

	Convey("Connect after a failed run starts over with a fresh budget", t, func() {
		server := newAcademyServer()
		defer server.srv.Close()

		c := sync.NewChannel(server.url(), "token-123", nil,
			sync.WithRetryDelay(5*time.Millisecond),
			sync.WithMaxRetries(2))

		server.reject = true
		So(c.Connect(context.Background()), ShouldBeNil)
		So(eventually(func() bool { return c.State() == sync.StateFailed }), ShouldBeTrue)

		server.reject = false
		time.Sleep(20 * time.Millisecond)
		So(c.Connect(context.Background()), ShouldBeNil)
		defer c.Disconnect()
		So(eventually(func() bool { return c.State() == sync.StateJoined }), ShouldBeTrue)
	})
}
