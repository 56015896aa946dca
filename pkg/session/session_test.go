package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-sync/pkg/engine"
	"screen-sync/pkg/history"
	"screen-sync/pkg/metrics"
	"screen-sync/pkg/screen"
)

// fakeEngine serves fixed lines and records what the session asks of it
type fakeEngine struct {
	rows, cols int
	scrollback []*engine.Line
	live       []*engine.Line
	disptop    int

	handler    engine.UpdateFunc
	fed        [][]byte
	scrolls    []int
	geometries [][3]int
	renders    int
	released   bool
	lfHasCR    bool
	cleared    bool
}

func textLine(cols int, text string) *engine.Line {
	line := &engine.Line{Cols: cols, Chars: make([]engine.Cell, cols)}
	runes := []rune(text)
	for x := 0; x < cols; x++ {
		ch := ' '
		if x < len(runes) {
			ch = runes[x]
		}
		line.Chars[x] = engine.Cell{Char: ch, Attr: engine.DefaultAttr}
	}
	return line
}

func newFakeEngine(rows, cols, scrollback int) *fakeEngine {
	f := &fakeEngine{rows: rows, cols: cols}
	for i := 0; i < scrollback; i++ {
		f.scrollback = append(f.scrollback, textLine(cols, fmt.Sprintf("sb%d", i)))
	}
	for i := 0; i < rows; i++ {
		f.live = append(f.live, textLine(cols, fmt.Sprintf("live%d", i)))
	}
	return f
}

func (f *fakeEngine) Feed(data []byte) {
	f.fed = append(f.fed, append([]byte(nil), data...))
}

func (f *fakeEngine) SetGeometry(rows, cols, scrollback int) error {
	f.geometries = append(f.geometries, [3]int{rows, cols, scrollback})
	f.rows, f.cols = rows, cols
	return nil
}

func (f *fakeEngine) ForceRender() { f.renders++ }

func (f *fakeEngine) Scroll(whence engine.ScrollWhence, offset int) {
	f.scrolls = append(f.scrolls, offset)
	f.disptop = offset
}

func (f *fakeEngine) ScrollbackLength() int { return len(f.scrollback) }
func (f *fakeEngine) ClearScrollback() { f.scrollback = nil; f.cleared = true }
func (f *fakeEngine) Release() { f.released = true }
func (f *fakeEngine) Rows() int { return f.rows }
func (f *fakeEngine) Cols() int { return f.cols }

func (f *fakeEngine) DisplayLine(row int) *engine.Line {
	idx := f.disptop + row
	if idx < 0 {
		sb := len(f.scrollback) + idx
		if sb < 0 {
			return nil
		}
		return f.scrollback[sb]
	}
	if idx >= len(f.live) {
		return nil
	}
	return f.live[idx]
}

func (f *fakeEngine) Palette() []colorful.Color { return engine.DefaultPalette() }
func (f *fakeEngine) SetLinefeedImpliesCR(on bool) { f.lfHasCR = on }
func (f *fakeEngine) SetUpdateHandler(fn engine.UpdateFunc) { f.handler = fn }

func startFake(t *testing.T, fake *fakeEngine, model screen.Model, opts ...Option) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = fake.cols, fake.rows
	opts = append(opts, WithEngineFactory(func(engine.Config) (Engine, error) { return fake, nil }))
	s, err := Start(cfg, model, opts...)
	require.NoError(t, err)
	return s
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 80, cfg.Width)
	assert.Equal(t, 24, cfg.Height)
	assert.Equal(t, 100000-24, cfg.Scrollback)
	assert.Equal(t, "UTF-8", cfg.Encoding)
	assert.True(t, cfg.IncrementalSync)

	bad := cfg
	bad.Width = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidGeometry)

	bad = cfg
	bad.Scrollback = -1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Encoding = " "
	assert.Error(t, bad.Validate())
}

func TestStart_DeclaresGeometry(t *testing.T) {
	fake := newFakeEngine(4, 10, 0)
	model := screen.NewBuffer()
	s := startFake(t, fake, model)

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 10, model.Width())
	assert.Equal(t, 4, model.Height())
	assert.Equal(t, 0, model.Scrollback())
	assert.Len(t, model.Palette(), len(engine.DefaultPalette()))
	assert.NotNil(t, fake.handler)
}

func TestStart_EngineFailure(t *testing.T) {
	cause := errors.New("unknown charset")
	_, err := Start(DefaultConfig(), screen.NewBuffer(), WithEngineFactory(func(engine.Config) (Engine, error) {
		return nil, cause
	}))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineInit)
	assert.ErrorIs(t, err, cause)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "engine", initErr.Op)
}

func TestStart_RealEngineRejectsCharset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Encoding = "no-such-charset"

	_, err := Start(cfg, screen.NewBuffer())
	assert.ErrorIs(t, err, ErrEngineInit)
}

func TestStart_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Height = -1

	_, err := Start(cfg, screen.NewBuffer())
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = Start(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestStart_PassesEngineConfig(t *testing.T) {
	var got engine.Config
	cfg := DefaultConfig()
	cfg.LinefeedImpliesCR = true
	_, err := Start(cfg, screen.NewBuffer(), WithEngineFactory(func(c engine.Config) (Engine, error) {
		got = c
		return newFakeEngine(c.Rows, c.Cols, 0), nil
	}))
	require.NoError(t, err)

	assert.Equal(t, 24, got.Rows)
	assert.Equal(t, 80, got.Cols)
	assert.Equal(t, DefaultScrollback, got.Scrollback)
	assert.Equal(t, "UTF-8", got.Charset)
	assert.True(t, got.ANSIColour)
	assert.True(t, got.ExtendedColour)
	assert.True(t, got.Bidi)
	assert.True(t, got.BCE)
	assert.True(t, got.LFHasCR)
	assert.NotNil(t, got.Logger)
}

func TestRowUpdate_CombiningJoinsPreviousCell(t *testing.T) {
	fake := newFakeEngine(2, 10, 0)
	model := screen.NewBuffer()
	s := startFake(t, fake, model)

	fake.handler(0, 0, []rune{'A', 'B', 0x0301}, engine.DefaultAttr, engine.LineWide)

	a, ok := model.Cell(0, 0)
	require.True(t, ok)
	assert.Equal(t, []rune{'A'}, a.Grapheme)
	b, ok := model.Cell(0, 1)
	require.True(t, ok)
	assert.Equal(t, []rune{'B', 0x0301}, b.Grapheme)
	assert.Equal(t, uint32(engine.DefaultAttr), b.Attr)
	_, ok = model.Cell(0, 2)
	assert.False(t, ok)

	assert.Equal(t, uint32(engine.LineWide), model.RowAttribute(0))
	assert.Equal(t, int64(2), s.Stats().CellsWritten)
}

func TestRowUpdate_LeadingCombiningStaysInFirstCell(t *testing.T) {
	fake := newFakeEngine(2, 10, 0)
	model := screen.NewBuffer()
	startFake(t, fake, model)

	fake.handler(1, 3, []rune{0x0301, 'x'}, engine.DefaultAttr, engine.LineNormal)

	first, _ := model.Cell(1, 3)
	assert.Equal(t, []rune{0x0301}, first.Grapheme)
	second, _ := model.Cell(1, 4)
	assert.Equal(t, []rune{'x'}, second.Grapheme)
}

func TestRowUpdate_WideContinuationIsACell(t *testing.T) {
	fake := newFakeEngine(1, 4, 0)
	model := screen.NewBuffer()
	startFake(t, fake, model)

	fake.handler(0, 0, []rune{'中', 0, 'a'}, engine.DefaultAttr, engine.LineNormal)

	cont, ok := model.Cell(0, 1)
	require.True(t, ok)
	assert.True(t, cont.Continuation())
	assert.Equal(t, "中a", model.Text(0))
}

func TestRowUpdate_Disabled(t *testing.T) {
	fake := newFakeEngine(2, 10, 0)
	model := screen.NewBuffer()
	s := startFake(t, fake, model)

	require.NoError(t, s.EnableIncrementalSync(false))
	fake.handler(0, 0, []rune("abc"), engine.DefaultAttr, engine.LineWide)

	_, ok := model.Cell(0, 0)
	assert.False(t, ok)
	assert.Equal(t, uint32(0), model.RowAttribute(0))
	assert.False(t, s.Config().IncrementalSync)

	require.NoError(t, s.EnableIncrementalSync(true))
	fake.handler(0, 0, []rune("abc"), engine.DefaultAttr, engine.LineNormal)
	assert.Equal(t, "abc", model.Text(0))
}

func TestRowUpdate_RejectedWritesAreCounted(t *testing.T) {
	fake := newFakeEngine(2, 4, 0)
	model := screen.NewBuffer()
	collector := metrics.New()
	s := startFake(t, fake, model, WithMetrics(collector))

	fake.handler(0, 3, []rune("xyz"), engine.DefaultAttr, engine.LineNormal)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.CellsWritten)
	assert.Equal(t, int64(2), stats.CellWriteErrors)
}

func TestFeed_FiltersDCSWindows(t *testing.T) {
	fake := newFakeEngine(2, 10, 0)
	rec := history.NewRecorder(0)
	s := startFake(t, fake, screen.NewBuffer(), WithRecorder(rec))

	require.NoError(t, s.Feed([]byte("ab\x1bP123456cd")))
	require.NoError(t, s.Feed(nil))

	require.Len(t, fake.fed, 2)
	assert.Equal(t, "ab", string(fake.fed[0]))
	assert.Equal(t, "cd", string(fake.fed[1]))

	stats := s.Stats()
	assert.Equal(t, int64(12), stats.BytesFed)
	assert.Equal(t, int64(1), stats.WindowsSuppressed)

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, history.KindFed, entries[0].Kind)
	assert.Equal(t, history.KindSuppressed, entries[1].Kind)
	assert.Equal(t, "\x1bP123456", string(entries[1].Data))
}

func TestFeed_TrailingIntroducerPassesThrough(t *testing.T) {
	fake := newFakeEngine(2, 10, 0)
	s := startFake(t, fake, screen.NewBuffer())

	require.NoError(t, s.Feed([]byte("xy\x1bP")))
	require.NoError(t, s.Feed([]byte("z\x1b")))

	require.Len(t, fake.fed, 2)
	assert.Equal(t, "xy\x1bP", string(fake.fed[0]))
	assert.Equal(t, "z\x1b", string(fake.fed[1]))
	assert.Equal(t, int64(0), s.Stats().WindowsSuppressed)
}

func TestResize(t *testing.T) {
	fake := newFakeEngine(4, 10, 0)
	model := screen.NewBuffer()
	rec := history.NewRecorder(0)
	s := startFake(t, fake, model, WithRecorder(rec))

	require.NoError(t, s.Resize(20, 6))
	assert.Equal(t, [3]int{6, 20, DefaultScrollback}, fake.geometries[0])
	assert.Equal(t, 20, model.Width())
	assert.Equal(t, 6, model.Height())
	assert.Equal(t, 20, s.Config().Width)
	assert.Equal(t, 1, fake.renders)

	assert.NoError(t, model.SetCell(5, 19, []rune{'z'}, 0))
	assert.ErrorIs(t, model.SetCell(6, 0, []rune{'z'}, 0), screen.ErrOutOfBounds)
	assert.ErrorIs(t, model.SetCell(0, 20, []rune{'z'}, 0), screen.ErrOutOfBounds)

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, history.KindResize, entries[0].Kind)
}

func TestResize_RealEngineUpdatesModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height, cfg.Scrollback = 10, 5, 10
	model := screen.NewBuffer()
	s, err := Start(cfg, model)
	require.NoError(t, err)
	defer s.Shutdown()

	require.NoError(t, s.Feed([]byte("a\r\nb\r\nc\r\nd\r\ne")))
	require.NoError(t, s.Resize(10, 2))

	assert.Equal(t, 2, model.Height())
	assert.Equal(t, "d", model.Text(0))
	assert.Equal(t, "e", model.Text(1))
}

func TestResize_InvalidGeometry(t *testing.T) {
	fake := newFakeEngine(4, 10, 0)
	s := startFake(t, fake, screen.NewBuffer())

	for _, size := range [][2]int{{0, 10}, {10, 0}, {-1, -1}} {
		err := s.Resize(size[0], size[1])
		assert.ErrorIs(t, err, ErrInvalidGeometry)
	}
	assert.Empty(t, fake.geometries)
}

func TestSetLinefeedAndClearScrollback(t *testing.T) {
	fake := newFakeEngine(2, 10, 3)
	s := startFake(t, fake, screen.NewBuffer())

	require.NoError(t, s.SetLinefeedImpliesCR(true))
	assert.True(t, fake.lfHasCR)
	assert.True(t, s.Config().LinefeedImpliesCR)

	require.NoError(t, s.ClearScrollback())
	assert.True(t, fake.cleared)
	assert.Equal(t, 0, fake.ScrollbackLength())
}

func TestShutdown(t *testing.T) {
	fake := newFakeEngine(2, 10, 0)
	collector := metrics.New()
	s := startFake(t, fake, screen.NewBuffer(), WithMetrics(collector))

	require.NoError(t, s.Shutdown())
	assert.True(t, fake.released)
	assert.Nil(t, fake.handler)

	assert.ErrorIs(t, s.Shutdown(), ErrClosed)
	assert.ErrorIs(t, s.Feed([]byte("x")), ErrClosed)
	assert.ErrorIs(t, s.Resize(10, 10), ErrClosed)
	assert.ErrorIs(t, s.SetLinefeedImpliesCR(true), ErrClosed)
	assert.ErrorIs(t, s.ClearScrollback(), ErrClosed)
	assert.ErrorIs(t, s.EnableIncrementalSync(true), ErrClosed)
	_, err := s.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestResponder(t *testing.T) {
	var replies []string
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 20, 5
	s, err := Start(cfg, screen.NewBuffer(), WithResponder(func(b []byte) {
		replies = append(replies, string(b))
	}))
	require.NoError(t, err)
	defer s.Shutdown()

	require.NoError(t, s.Feed([]byte("ab\x1b[6n")))
	assert.Equal(t, []string{"\x1b[1;3R"}, replies)
}
