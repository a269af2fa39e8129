package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/quiz-battle-backend/internal/battle"
	"github.com/DoyleJ11/quiz-battle-backend/internal/bus"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/hub"
	"github.com/DoyleJ11/quiz-battle-backend/internal/lobby"
	"github.com/DoyleJ11/quiz-battle-backend/internal/repository"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mem := store.NewMemoryStore()
	rooms := repository.NewRooms(mem, time.Hour)
	h := hub.NewHub(context.Background(), lobby.Deps{
		Rooms: rooms,
		Bank:  repository.NewBank(mem),
		Bus:   bus.NewMemoryBus(),
		Rules: engine.Rules{AnswerGrace: 2 * time.Second},
	})
	srv := httptest.NewServer(SetupRoutes(battle.NewService(rooms, h), mem, []string{"*"}))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func createRoom(t *testing.T, srv *httptest.Server, body string) (id, code string) {
	t.Helper()
	status, out := do(t, srv, http.MethodPost, "/api/rooms", body)
	require.Equal(t, http.StatusCreated, status, "%v", out)
	return out["id"].(string), out["code"].(string)
}

func TestCreateRoom(t *testing.T) {
	srv := newServer(t)

	status, out := do(t, srv, http.MethodPost, "/api/rooms", `{"numTeams": 10, "maxHpPerTeam": 150}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Len(t, out["teams"], 6)
	cfg := out["config"].(map[string]any)
	assert.EqualValues(t, 6, cfg["numTeams"])
	assert.EqualValues(t, 150, cfg["maxHpPerTeam"])

	// no body means defaults
	status, out = do(t, srv, http.MethodPost, "/api/rooms", "")
	require.Equal(t, http.StatusCreated, status)
	assert.Len(t, out["teams"], 2)
}

func TestCreateRoom_EmptyChunkedBody(t *testing.T) {
	srv := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/rooms", strings.NewReader(""))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	rec := httptest.NewRecorder()
	srv.Config.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out["teams"], 2)
}

func TestCreateRoom_RejectsUnknownFields(t *testing.T) {
	srv := newServer(t)

	status, out := do(t, srv, http.MethodPost, "/api/rooms", `{"numTeams": 3, "godMode": true}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", out["error"])
}

func TestJoinAndGetRoom(t *testing.T) {
	srv := newServer(t)
	_, code := createRoom(t, srv, "")

	status, out := do(t, srv, http.MethodPost, "/api/rooms/join", `{"roomCode":"`+code+`","name":"ana","teamId":"A"}`)
	require.Equal(t, http.StatusOK, status, "%v", out)
	assert.NotEmpty(t, out["playerId"])

	status, out = do(t, srv, http.MethodGet, "/api/rooms/"+strings.ToLower(code), "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["players"], 1)

	status, out = do(t, srv, http.MethodPost, "/api/rooms/join", `{"roomCode":"`+code+`","name":"ben","teamId":"Z"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_TEAM", out["error"])

	status, out = do(t, srv, http.MethodPost, "/api/rooms/join", `{"roomCode":"NOPE00","name":"ben","teamId":"A"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "ROOM_NOT_FOUND", out["error"])

	status, out = do(t, srv, http.MethodPost, "/api/rooms/join", `{"roomCode":"`+code+`"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", out["error"])
}

func TestJoinRoom_NameLength(t *testing.T) {
	srv := newServer(t)
	_, code := createRoom(t, srv, "")

	longest := strings.Repeat("é", 32)
	status, out := do(t, srv, http.MethodPost, "/api/rooms/join", `{"roomCode":"`+code+`","name":"`+longest+`","teamId":"A"}`)
	require.Equal(t, http.StatusOK, status, "%v", out)

	// rejected by request validation, before it reaches the room
	status, out = do(t, srv, http.MethodPost, "/api/rooms/join", `{"roomCode":"`+code+`","name":"`+strings.Repeat("x", 40)+`","teamId":"A"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", out["error"])
	assert.Contains(t, out["message"], "Name failed max")
}

func TestQuestionFlow(t *testing.T) {
	srv := newServer(t)
	roomID, code := createRoom(t, srv, "")

	_, joined := do(t, srv, http.MethodPost, "/api/rooms/join", `{"roomCode":"`+code+`","name":"ana","teamId":"A"}`)
	playerID := joined["playerId"].(string)

	status, started := do(t, srv, http.MethodGet, "/api/questions/start?roomCode="+code, "")
	require.Equal(t, http.StatusOK, status, "%v", started)
	assert.Equal(t, engine.FallbackQuestionID, started["questionId"])
	assert.Equal(t, roomID, started["roomId"])

	submit := `{"roomId":"` + roomID + `","playerId":"` + playerID + `","questionId":"sample-1","answerIndex":1,"timeMs":999999}`
	status, res := do(t, srv, http.MethodPost, "/api/answers", submit)
	require.Equal(t, http.StatusOK, status, "%v", res)
	assert.Equal(t, true, res["isCorrect"])
	// the client's timeMs is ignored; answering right away earns nearly the full bonus
	assert.Greater(t, res["score"].(float64), float64(1400))

	status, res = do(t, srv, http.MethodPost, "/api/answers", submit)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_SUBMISSION", res["error"])

	status, res = do(t, srv, http.MethodPost, "/api/actions", `{"roomId":"`+roomID+`","playerId":"`+playerID+`","kind":"attack","targetTeamId":"B"}`)
	require.Equal(t, http.StatusOK, status, "%v", res)
	teams := res["teams"].([]any)
	assert.EqualValues(t, 180, teams[1].(map[string]any)["hp"])
}

func TestSubmit_MissingAnswerIndex(t *testing.T) {
	srv := newServer(t)
	status, res := do(t, srv, http.MethodPost, "/api/answers", `{"roomId":"r","playerId":"p","questionId":"q"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res["error"])
}

func TestAction_AttackNeedsTarget(t *testing.T) {
	srv := newServer(t)
	status, res := do(t, srv, http.MethodPost, "/api/actions", `{"roomId":"r","playerId":"p","kind":"attack"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", res["error"])
}

func TestHealthz(t *testing.T) {
	srv := newServer(t)
	status, res := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", res["status"])
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestWebSocket_StreamsRoomEvents(t *testing.T) {
	srv := newServer(t)
	_, code := createRoom(t, srv, "")

	status, _ := do(t, srv, http.MethodGet, "/ws?roomCode=NOPE00", "")
	assert.Equal(t, http.StatusNotFound, status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?roomCode=" + code
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	snap := readEvent(t, conn)
	assert.Equal(t, "ROOM_SNAPSHOT", snap["type"])

	_, joined := do(t, srv, http.MethodPost, "/api/rooms/join", `{"roomCode":"`+code+`","name":"ana","teamId":"A"}`)
	ev := readEvent(t, conn)
	assert.Equal(t, "PLAYER_JOINED", ev["type"])
	assert.Equal(t, joined["playerId"], ev["playerId"])

	do(t, srv, http.MethodPost, "/api/questions/start", `{"roomCode":"`+code+`"}`)
	ev = readEvent(t, conn)
	assert.Equal(t, "QUESTION_STARTED", ev["type"])
	assert.NotContains(t, ev, "correctIndex")

	// answers can also go over the socket
	msg := `{"type":"SUBMIT_ANSWER","playerId":"` + joined["playerId"].(string) + `","questionId":"sample-1","answerIndex":0}`
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(msg)))

	seen := map[string]bool{}
	for n := 0; n < 3; n++ {
		seen[readEvent(t, conn)["type"].(string)] = true
	}
	assert.True(t, seen["ANSWER_RESULT"])
	assert.True(t, seen["ANSWER_SUBMITTED"])
	assert.True(t, seen["SCOREBOARD_UPDATED"])
}
