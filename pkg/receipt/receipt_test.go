package receipt

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func sampleReceipt() Receipt {
	return Receipt{
		PaymentID:    uuid.New(),
		CustomerName: "Meena",
		Phone:        "98765 43210",
		LoanLabel:    "Cart loan",
		Amount:       3000,
		PaymentDate:  time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		WeekNumber:   1,
		BalanceAfter: 7000,
		Mode:         "cash",
	}
}

func TestReceiptText(t *testing.T) {
	text := sampleReceipt().Text()
	for _, want := range []string{"Name: Meena", "Loan: Cart loan", "Amount: Rs.3000 (cash)", "Date: 03-06-2024", "Week: 1", "Balance: Rs.7000"} {
		require.Contains(t, text, want)
	}
	require.NotContains(t, text, "fully paid")

	r := sampleReceipt()
	r.BalanceAfter = 0
	require.Contains(t, r.Text(), "fully paid")
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in, code, want string
		err            bool
	}{
		{"98765 43210", "91", "919876543210", false},
		{"+91 98765-43210", "91", "919876543210", false},
		{"9876543210", "", "9876543210", false},
		{"12345", "91", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in, tc.code)
		if tc.err {
			require.ErrorIs(t, err, ErrInvalidPhone, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestWhatsAppLink(t *testing.T) {
	link, err := WhatsAppLink("https://wa.me/", "91", "98765 43210", "Paid Rs.100 & thanks")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "wa.me", u.Host)
	require.Equal(t, "/919876543210", u.Path)
	require.Equal(t, "Paid Rs.100 & thanks", u.Query().Get("text"))

	_, err = WhatsAppLink("https://wa.me", "91", "123", "x")
	require.ErrorIs(t, err, ErrInvalidPhone)
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	block chan struct{}
	err   error
}

func (f *fakeSender) Send(ctx context.Context, phone, text string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, phone)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, 10, zaptest.NewLogger(t))
	d.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Notify(sampleReceipt()))
	}
	d.Shutdown()
	require.Equal(t, 5, sender.count())
}

func TestDispatcherNotifyNeverBlocks(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	d := NewDispatcher(sender, 1, zap.NewNop())
	d.Start()

	// The worker holds one receipt in Send and the buffer holds one more.
	require.NoError(t, d.Notify(sampleReceipt()))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.Notify(sampleReceipt()))
	require.ErrorIs(t, d.Notify(sampleReceipt()), ErrQueueFull)

	close(sender.block)
	d.Shutdown()
	require.Equal(t, 2, sender.count())
}

func TestDispatcherLogsSendFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	d := NewDispatcher(&fakeSender{err: errors.New("offline")}, 1, zap.New(core))
	d.Start()
	require.NoError(t, d.Notify(sampleReceipt()))
	d.Shutdown()

	require.Equal(t, 1, logs.FilterMessage("failed to send receipt").Len())
}

func TestLinkSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := LinkSender{BaseURL: "https://wa.me", CountryCode: "91", Log: zap.New(core)}

	require.NoError(t, s.Send(context.Background(), "9876543210", "hello"))
	entries := logs.FilterMessage("receipt ready").All()
	require.Len(t, entries, 1)
	require.True(t, strings.HasPrefix(entries[0].ContextMap()["link"].(string), "https://wa.me/919876543210?text=hello"))

	require.Error(t, s.Send(context.Background(), "12", "hello"))
}
