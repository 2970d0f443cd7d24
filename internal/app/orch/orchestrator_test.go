package orch

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Polyglot/internal/app"
	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/dkeye/Polyglot/internal/core"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentReachesOnlyTheOtherSession(t *testing.T) {
	h := newHarness(t)
	room := h.orch.CreateRoom()
	a := h.connect(t, "a", room, "en")
	b := h.connect(t, "b", room, "es")

	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(time.Second)))

	require.Eventually(t, func() bool { return len(b.binaries()) == 1 }, eventually, tick)
	assert.EqualValues(t, 1, h.stt.calls.Load())
	assert.EqualValues(t, 1, h.mt.calls.Load())
	assert.EqualValues(t, 1, h.tts.calls.Load())

	tr := b.messages(MsgTranslation)
	require.Len(t, tr, 1)
	assert.Equal(t, "a", tr[0]["from"])
	assert.Equal(t, "es", tr[0]["target_lang"])
	assert.Equal(t, "[es] hello", tr[0]["text"])
	assert.Equal(t, []byte("wav:[es] hello"), b.binaries()[0])

	// text first, then audio
	kinds := b.kinds()
	assert.Equal(t, core.BinaryFrame, kinds[len(kinds)-1])
	assert.Equal(t, core.TextFrame, kinds[len(kinds)-2])

	assert.Empty(t, a.messages(MsgTranslation))
	assert.Empty(t, a.binaries())
}

func TestConnectAnnouncesParticipants(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "a", "room-x", "en")
	established := a.messages(MsgConnectionEstablished)
	require.Len(t, established, 1)
	assert.Equal(t, "room-x", established[0]["room_id"])
	assert.Equal(t, "a", established[0]["user_id"])

	b := h.connect(t, "b", "room-x", "fr")
	joined := a.messages(MsgParticipantJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "b", joined[0]["user_id"])
	assert.Empty(t, b.messages(MsgParticipantJoined))

	updates := a.messages(MsgParticipantsUpdate)
	require.NotEmpty(t, updates)
	assert.EqualValues(t, 2, updates[len(updates)-1]["count"])
	assert.Equal(t, 2, h.orch.ParticipantCount("room-x"))

	h.orch.Disconnect("b")
	left := a.messages(MsgParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0]["user_id"])
	updates = a.messages(MsgParticipantsUpdate)
	assert.EqualValues(t, 1, updates[len(updates)-1]["count"])
}

func TestEmptyRoomDisappears(t *testing.T) {
	h := newHarness(t)
	room := h.orch.CreateRoom()
	assert.Equal(t, 0, h.orch.ParticipantCount(room))
	assert.Empty(t, h.orch.ListRooms())

	h.connect(t, "a", room, "en")
	h.connect(t, "b", room, "de")
	assert.Equal(t, 2, h.orch.ParticipantCount(room))

	assert.True(t, h.orch.Disconnect("a"))
	assert.False(t, h.orch.Disconnect("a"))
	assert.Equal(t, 1, h.orch.ParticipantCount(room))

	assert.True(t, h.orch.Disconnect("b"))
	assert.Equal(t, 0, h.orch.ParticipantCount(room))
	assert.Empty(t, h.orch.ListRooms())
}

func TestSilentSegmentIsNotBroadcast(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "es")

	require.NoError(t, h.orch.Ingest(context.Background(), "a", quiet(time.Second)))
	require.Eventually(t, func() bool { return h.stt.calls.Load() == 1 }, eventually, tick)

	assert.Never(t, func() bool { return len(b.binaries()) > 0 }, 100*time.Millisecond, tick)
	assert.Zero(t, h.mt.calls.Load())
	assert.Zero(t, h.tts.calls.Load())
	assert.Empty(t, b.messages(MsgTranslation))
}

func TestMirrorEchoesWithoutCollaborators(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "es")

	assert.True(t, h.orch.SetMirror(true))
	frame := loud(200 * time.Millisecond)
	require.NoError(t, h.orch.Ingest(context.Background(), "a", frame))
	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(time.Second)))

	echoes := a.binaries()
	require.Len(t, echoes, 2)
	pcm, f, err := audio.DecodeWAV(echoes[0])
	require.NoError(t, err)
	assert.Equal(t, testFormat, f)
	assert.Equal(t, frame, pcm)
	assert.Zero(t, h.stt.calls.Load())
	assert.Empty(t, b.binaries())

	assert.False(t, h.orch.SetMirror(false))
	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(time.Second)))
	require.Eventually(t, func() bool { return len(b.binaries()) == 1 }, eventually, tick)
	assert.EqualValues(t, 1, h.stt.calls.Load())
	assert.Len(t, a.binaries(), 2)
}

func TestMirrorToggleMidStream(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "es")

	// buffered before the toggle: translated
	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(500*time.Millisecond)))
	h.orch.SetMirror(true)
	// after the toggle: echoed
	after := loud(300 * time.Millisecond)
	require.NoError(t, h.orch.Ingest(context.Background(), "a", after))

	require.Eventually(t, func() bool { return len(b.binaries()) == 1 }, eventually, tick)
	assert.EqualValues(t, 1, h.stt.calls.Load())

	echoes := a.binaries()
	require.Len(t, echoes, 1)
	pcm, _, err := audio.DecodeWAV(echoes[0])
	require.NoError(t, err)
	assert.Equal(t, after, pcm)
}

func TestDisconnectFlushesTrailingAudio(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "ja")

	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(400*time.Millisecond)))
	before := len(a.kinds())
	h.orch.Disconnect("a")

	require.Eventually(t, func() bool { return len(b.binaries()) == 1 }, eventually, tick)
	assert.Equal(t, "[ja] hello", b.messages(MsgTranslation)[0]["text"])
	assert.Len(t, b.messages(MsgParticipantLeft), 1)
	assert.Len(t, a.kinds(), before)

	assert.ErrorIs(t, h.orch.Ingest(context.Background(), "a", loud(time.Second)), ErrSessionClosed)
	assert.ErrorIs(t, h.orch.Flush("a"), ErrSessionClosed)
}

func TestDisconnectDiscardsShortTail(t *testing.T) {
	h := newHarness(t, withDiscard)
	h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "ja")

	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(50*time.Millisecond)))
	h.orch.Disconnect("a")

	assert.Never(t, func() bool { return h.stt.calls.Load() > 0 }, 100*time.Millisecond, tick)
	assert.Empty(t, b.binaries())
}

func TestLeavingListenerGetsNothing(t *testing.T) {
	h := newHarness(t)
	h.stt.delay = 50 * time.Millisecond
	h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "es")
	c := h.connect(t, "c", "r", "fr")

	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(time.Second)))
	require.Eventually(t, func() bool { return h.stt.calls.Load() == 1 }, eventually, tick)
	h.orch.Disconnect("c")

	require.Eventually(t, func() bool { return len(b.binaries()) == 1 }, eventually, tick)
	assert.Empty(t, c.binaries())
	assert.Empty(t, c.messages(MsgTranslation))
}

func TestSegmentsKeepOrderWithOneInFlight(t *testing.T) {
	h := newHarness(t)
	h.stt.delay = 10 * time.Millisecond
	h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "es")

	for i := 0; i < 3; i++ {
		require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(time.Second)))
	}
	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(500*time.Millisecond)))
	require.NoError(t, h.orch.Flush("a"))

	require.Eventually(t, func() bool { return len(b.binaries()) == 4 }, eventually, tick)
	var seqs []float64
	for _, m := range b.messages(MsgTranslation) {
		seqs = append(seqs, m["seq"].(float64))
	}
	assert.Equal(t, []float64{1, 2, 3, 4}, seqs)
	assert.EqualValues(t, 1, h.stt.maxTotal.Load())
}

func TestGlobalCeilingQueuesAcrossSessions(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *fakeSTT, _ *fakeMT) { c.MaxInFlight = 1 })
	h.stt.delay = 20 * time.Millisecond
	var listeners []*recorder
	for _, room := range []domain.RoomID{"r1", "r2", "r3"} {
		h.connect(t, "speaker-"+string(room), room, "en")
		listeners = append(listeners, h.connect(t, "listener-"+string(room), room, "de"))
	}
	for _, room := range []string{"r1", "r2", "r3"} {
		require.NoError(t, h.orch.Ingest(context.Background(), core.SessionID("speaker-"+room), loud(time.Second)))
	}

	for _, l := range listeners {
		require.Eventually(t, func() bool { return len(l.binaries()) == 1 }, eventually, tick)
	}
	assert.EqualValues(t, 1, h.stt.maxTotal.Load())
	assert.EqualValues(t, 3, h.stt.calls.Load())
}

func TestPipelineFailureReportedToSpeakerOnly(t *testing.T) {
	h := newHarness(t, withMTError)
	a := h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "es")

	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(time.Second)))
	require.Eventually(t, func() bool { return len(a.messages(MsgError)) == 1 }, eventually, tick)

	msg := a.messages(MsgError)[0]
	assert.Equal(t, ErrCodePipelineFailed, msg["error"])
	assert.Equal(t, "mt", msg["stage"])
	assert.Empty(t, b.messages(MsgError))
	assert.Empty(t, b.binaries())
	assert.Zero(t, h.tts.calls.Load())
}

func TestSameLanguageListenersShareOneTranslation(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "es")
	c := h.connect(t, "c", "r", "es")
	d := h.connect(t, "d", "r", "en")

	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(time.Second)))
	for _, r := range []*recorder{b, c, d} {
		require.Eventually(t, func() bool { return len(r.binaries()) == 1 }, eventually, tick)
	}
	assert.EqualValues(t, 1, h.stt.calls.Load())
	assert.EqualValues(t, 1, h.mt.calls.Load())
	assert.EqualValues(t, 2, h.tts.calls.Load())
	assert.Equal(t, "hello", d.messages(MsgTranslation)[0]["text"])
}

func TestChangeLanguage(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "es")

	lang, err := h.orch.ChangeLanguage("b", "fr-CA")
	require.NoError(t, err)
	assert.Equal(t, domain.Language("fr"), lang)
	require.Len(t, b.messages(MsgLanguageChanged), 1)

	_, err = h.orch.ChangeLanguage("b", "tlh")
	assert.ErrorIs(t, err, domain.ErrLanguageUnsupported)
	_, err = h.orch.ChangeLanguage("nobody", "de")
	assert.ErrorIs(t, err, ErrSessionClosed)

	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(time.Second)))
	require.Eventually(t, func() bool { return len(b.binaries()) == 1 }, eventually, tick)
	assert.Equal(t, "[fr] hello", b.messages(MsgTranslation)[0]["text"])
}

func TestLanguageChangeDuringTranslationKeepsSegment(t *testing.T) {
	h := newHarness(t)
	h.stt.delay = 300 * time.Millisecond
	h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "es")

	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(time.Second)))
	require.Eventually(t, func() bool { return h.stt.inFlight.Load() == 1 }, eventually, tick)
	_, err := h.orch.ChangeLanguage("b", "fr")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(b.binaries()) == 1 }, eventually, tick)
	require.Len(t, b.messages(MsgTranslation), 1)
	assert.Equal(t, "[es] hello", b.messages(MsgTranslation)[0]["text"])
	assert.Equal(t, "es", b.messages(MsgTranslation)[0]["target_lang"])

	require.NoError(t, h.orch.Ingest(context.Background(), "a", loud(time.Second)))
	require.Eventually(t, func() bool { return len(b.binaries()) == 2 }, eventually, tick)
	assert.Equal(t, "[fr] hello", b.messages(MsgTranslation)[1]["text"])
}

func TestMirrorIngestAfterDisconnectIsRejected(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "a", "r", "en")
	h.orch.SetMirror(true)

	w, ok := h.orch.worker("a")
	require.True(t, ok)
	require.True(t, h.orch.Disconnect("a"))

	err := h.orch.ingest(context.Background(), w, loud(100*time.Millisecond))
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Empty(t, a.binaries())
	assert.Zero(t, h.stt.calls.Load())
}

func TestEvictRoomKicksEveryone(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "a", "r", "en")
	b := h.connect(t, "b", "r", "es")

	assert.Equal(t, 2, h.orch.EvictRoom("r"))
	assert.Equal(t, 0, h.orch.ParticipantCount("r"))
	a.mu.Lock()
	assert.True(t, a.closed)
	a.mu.Unlock()
	b.mu.Lock()
	assert.True(t, b.closed)
	b.mu.Unlock()
	assert.Equal(t, 0, h.orch.EvictRoom("r"))
}

func TestConnectRejectsDuplicatesAndAfterClose(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a", "r", "en")
	ms := core.NewMemberSession("a", "r", "en", domain.NewParticipant("", ""), &recorder{})
	assert.ErrorIs(t, h.orch.Connect(ms, nil), app.ErrDuplicateSession)
	assert.Equal(t, 1, h.orch.ParticipantCount("r"))

	h.orch.Close()
	ms = core.NewMemberSession("z", "r", "en", domain.NewParticipant("", ""), &recorder{})
	assert.ErrorIs(t, h.orch.Connect(ms, nil), ErrClosed)
}
