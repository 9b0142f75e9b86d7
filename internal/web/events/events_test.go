package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/restgen/internal/orm/access"
	"github.com/conduit-lang/restgen/internal/orm/crud"
	"github.com/conduit-lang/restgen/internal/orm/ddl"
	"github.com/conduit-lang/restgen/internal/orm/derive"
	"github.com/conduit-lang/restgen/internal/orm/dialect"
	"github.com/conduit-lang/restgen/internal/orm/schema"
	"github.com/conduit-lang/restgen/internal/orm/shape"
	"github.com/conduit-lang/restgen/internal/orm/transaction"
)

const model = `
entities:
  - name: Owner
    primary_key: uuid
    access: {kind: owner-only, user: true}
    fields:
      - {name: first_name, type: string}
  - name: Specie
    primary_key: autoincrement
    fields:
      - {name: slug, type: string}
`

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	registry, err := schema.LoadModel([]byte(model))
	require.NoError(t, err)

	hub := NewHub(registry, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(NewHandler(hub, nil))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	before := hub.ClientCount()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() > before }, time.Second, 5*time.Millisecond)
	return conn
}

func next(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func record(values map[string]interface{}) *shape.Object {
	o := shape.NewObject()
	for k, v := range values {
		o.Set(k, v)
	}
	return o
}

func TestBroadcast(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, hub, srv, "")

	hub.Publish(crud.ChangeEvent{Entity: "Specie", Operation: "create", Key: int64(1), Record: record(map[string]interface{}{"slug": "dog"})})

	event := next(t, conn)
	assert.Equal(t, "Specie", event.Entity)
	assert.Equal(t, "create", event.Operation)
	assert.Equal(t, float64(1), event.Key)
	require.NotNil(t, event.Record)
	slug, _ := event.Record.Get("slug")
	assert.Equal(t, "dog", slug)
	assert.False(t, event.At.IsZero())
}

func TestAccessControlledRecordsAreRedacted(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, hub, srv, "")

	hub.Publish(crud.ChangeEvent{Entity: "Owner", Operation: "patch", Key: "abc", Record: record(map[string]interface{}{"first_name": "Ann"})})

	event := next(t, conn)
	assert.Equal(t, "abc", event.Key)
	assert.Nil(t, event.Record)
}

func TestEntityFilter(t *testing.T) {
	hub, srv := startHub(t)
	species := dial(t, hub, srv, "?entity=Specie")
	all := dial(t, hub, srv, "")

	hub.Publish(crud.ChangeEvent{Entity: "Owner", Operation: "delete", Key: "abc"})
	hub.Publish(crud.ChangeEvent{Entity: "Specie", Operation: "delete", Key: int64(2)})

	assert.Equal(t, "Owner", next(t, all).Entity)
	assert.Equal(t, "Specie", next(t, all).Entity)
	assert.Equal(t, "Specie", next(t, species).Entity, "filtered subscribers skip other entities")
}

func TestUnknownEntityFilter(t *testing.T) {
	_, srv := startHub(t)

	resp, err := http.Get(srv.URL + "/?entity=Unicorn")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCloseDisconnects(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, hub, srv, "")

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	hub.Publish(crud.ChangeEvent{Entity: "Specie", Operation: "create", Key: int64(1)})
}

func TestAttachStreamsCommittedWrites(t *testing.T) {
	ctx := context.Background()
	hub, srv := startHub(t)

	engine, err := derive.Build(hub.registry, dialect.SQLite)
	require.NoError(t, err)
	db, d, err := dialect.Open(ctx, "sqlite3", ":memory:", dialect.DefaultPoolConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, ddl.Bootstrap(ctx, db, d, hub.registry, nil))

	controllers := crud.NewControllers(engine, transaction.NewManager(db))
	hub.Attach(controllers)
	conn := dial(t, hub, srv, "?entity=Specie")

	create, err := controllers.Create("Specie")
	require.NoError(t, err)
	input, err := create.Input().Decode([]byte(`{"slug": "cat"}`))
	require.NoError(t, err)
	_, err = create.Create(ctx, access.Anonymous, input)
	require.NoError(t, err)

	event := next(t, conn)
	assert.Equal(t, "create", event.Operation)
	slug, _ := event.Record.Get("slug")
	assert.Equal(t, "cat", slug)
}
