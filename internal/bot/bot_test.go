package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"printshop-pricing/internal/config"
	"printshop-pricing/internal/quote"
	"printshop-pricing/internal/session"
	"printshop-pricing/internal/storage/fixture"
	"printshop-pricing/pkg/redis"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

type fakeSender struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) texts() []string {
	var out []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg.Text)
		}
	}
	return out
}

func (f *fakeSender) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type memStore struct {
	mu   sync.Mutex
	data map[int64][]byte
}

func (s *memStore) SaveState(_ context.Context, chatID int64, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[chatID] = data
	return nil
}

func (s *memStore) GetState(_ context.Context, chatID int64, state any) error {
	s.mu.Lock()
	data, ok := s.data[chatID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("get state: %w", redis.ErrNotFound)
	}
	return json.Unmarshal(data, state)
}

func (s *memStore) ClearState(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, chatID)
	return nil
}

type memSnapshots struct {
	saved []quote.Snapshot
}

func (m *memSnapshots) SaveQuoteSnapshot(_ context.Context, snap quote.Snapshot) error {
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memSnapshots) ListQuoteSnapshots(_ context.Context, productID string, _ int) ([]quote.Snapshot, error) {
	var out []quote.Snapshot
	for _, s := range m.saved {
		if productID == "" || s.ProductID == productID {
			out = append(out, s)
		}
	}
	return out, nil
}

const (
	chatID  = int64(100)
	userID  = int64(7)
	adminID = int64(1)
)

func newTestBot(t *testing.T) (*Bot, *fakeSender, *memSnapshots) {
	t.Helper()
	src, err := fixture.Load("../storage/fixture/testdata/catalog.yaml")
	require.NoError(t, err)

	snaps := &memSnapshots{}
	logger := zaptest.NewLogger(t)
	svc := quote.NewService(src, src, src, snaps, quote.Config{ExtrapolateAboveMax: true}, logger)
	sessions := session.NewManager(&memStore{data: map[int64][]byte{}}, svc)

	sender := &fakeSender{}
	cfg := &config.Config{AdminIDs: []int64{adminID}}
	return newBot(sender, cfg, sessions, svc, snaps, logger), sender, snaps
}

func command(from int64, text string) tgbotapi.Update {
	n := strings.IndexByte(text, ' ')
	if n < 0 {
		n = len(text)
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		From:     &tgbotapi.User{ID: from},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}}
}

func TestBot_ProductShowsOptionsAndPrice(t *testing.T) {
	b, sender, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(userID, "/product flyer"))

	require.Len(t, sender.sent, 2)
	options, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, options.Text, "Quantity: 50")
	assert.Contains(t, options.Text, "Paper [m1 paper]: Matte 170g")

	kb, ok := options.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "• Matte 170g", kb.InlineKeyboard[0][0].Text)
	require.NotNil(t, kb.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "c|m1|paper|gloss", *kb.InlineKeyboard[0][1].CallbackData)

	assert.Contains(t, sender.lastText(), "Gross: 30.00 EUR")
}

func TestBot_CallbackChoosesOption(t *testing.T) {
	b, sender, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(userID, "/product flyer"))
	b.handleUpdate(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    "c|m1|paper|gloss",
	}})

	assert.Len(t, sender.requests, 1)
	assert.Contains(t, sender.lastText(), "Net: 20.00 EUR")
	assert.Contains(t, sender.lastText(), "Gross: 24.00 EUR")
}

func TestBot_QuantityAndModifiers(t *testing.T) {
	b, sender, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(userID, "/product flyer"))
	b.handleUpdate(ctx, command(userID, "/choose m1 paper gloss"))
	b.handleUpdate(ctx, command(userID, "/qty 300"))
	assert.Contains(t, sender.lastText(), "Net: 40.00 EUR")

	b.handleUpdate(ctx, command(userID, "/speed 20"))
	b.handleUpdate(ctx, command(userID, "/discount 10%"))
	assert.Contains(t, sender.lastText(), "Net: 43.20 EUR")
}

func TestBot_AreaProductNeedsSize(t *testing.T) {
	b, sender, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(userID, "/product banner"))
	assert.Contains(t, sender.lastText(), "Not all options are set")

	b.handleUpdate(ctx, command(userID, "/size 200x100"))
	assert.Contains(t, sender.lastText(), "Gross: 24.00 EUR")
}

func TestBot_ReportsUserErrors(t *testing.T) {
	b, sender, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(userID, "/price"))
	assert.Equal(t, "❌ No product selected. Start with /product <id>.", sender.lastText())

	b.handleUpdate(ctx, command(userID, "/product flyer"))
	b.handleUpdate(ctx, command(userID, "/qty many"))
	assert.Equal(t, "❌ Quantity must be a whole number", sender.lastText())

	b.handleUpdate(ctx, command(userID, "/choose m1 paper canvas"))
	assert.True(t, strings.HasPrefix(sender.lastText(), "❌ unknown option"), sender.lastText())

	b.handleUpdate(ctx, command(userID, "/bogus"))
	assert.Contains(t, sender.lastText(), "Unknown command")

	b.handleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: "hello"}})
	assert.Contains(t, sender.lastText(), "only understand commands")
}

func TestBot_AdminCommandsRequireAdmin(t *testing.T) {
	b, sender, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(userID, "/export flyer"))
	assert.Equal(t, "❌ Access denied", sender.lastText())

	b.handleUpdate(ctx, command(userID, "/help"))
	assert.NotContains(t, sender.lastText(), "Admin commands")
	b.handleUpdate(ctx, command(adminID, "/help"))
	assert.Contains(t, sender.lastText(), "Admin commands")
}

func TestBot_FreezeAndExportQuotes(t *testing.T) {
	b, sender, snaps := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(adminID, "/product flyer"))
	b.handleUpdate(ctx, command(adminID, "/freeze"))
	require.Len(t, snaps.saved, 1)
	assert.Contains(t, sender.lastText(), snaps.saved[0].ID.String())
	assert.Contains(t, sender.lastText(), "Gross: 30.00 EUR")

	b.handleUpdate(ctx, command(adminID, "/quotes flyer"))
	doc, ok := sender.sent[len(sender.sent)-1].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)

	f, err := excelize.OpenReader(strings.NewReader(string(file.Bytes)))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Quotes")
}

func TestBot_ExportMatrix(t *testing.T) {
	b, sender, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(adminID, "/export cards"))
	doc, ok := sender.sent[len(sender.sent)-1].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "matrix_cards.xlsx", file.Name)
	assert.NotEmpty(t, file.Bytes)

	b.handleUpdate(ctx, command(adminID, "/export nothing"))
	assert.Equal(t, "❌ Failed to load the catalog", sender.lastText())
}

func TestBot_FreezeRejectsUnpriced(t *testing.T) {
	b, sender, snaps := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(adminID, "/product banner"))
	b.handleUpdate(ctx, command(adminID, "/freeze"))
	assert.Empty(t, snaps.saved)
	assert.Equal(t, "❌ The current configuration has no price", sender.lastText())
}

func TestChoiceData(t *testing.T) {
	data, ok := choiceData("m1", "paper", "gloss")
	require.True(t, ok)

	m, a, v, ok := parseChoiceData(data)
	require.True(t, ok)
	assert.Equal(t, []string{"m1", "paper", "gloss"}, []string{m, a, v})

	_, ok = choiceData("m1", "paper", strings.Repeat("x", 60))
	assert.False(t, ok)

	for _, bad := range []string{"", "c|m1|paper", "x|m1|paper|gloss", "c||paper|gloss"} {
		_, _, _, ok := parseChoiceData(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseDimensions(t *testing.T) {
	cases := map[string][2]float64{
		"200 100":   {200, 100},
		"200x100":   {200, 100},
		"12,5 × 30": {12.5, 30},
	}
	for in, want := range cases {
		w, h, err := parseDimensions(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, [2]float64{w, h}, in)
	}

	_, _, err := parseDimensions("200")
	assert.Error(t, err)
	_, _, err = parseDimensions("wide tall")
	assert.Error(t, err)
}
