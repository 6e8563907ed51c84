package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/carescan/scanbook/internal/auth"
	redisclient "github.com/carescan/scanbook/internal/redis"
	"github.com/carescan/scanbook/internal/scan"
)

// memRepo is an in-memory scan.Repository for handler tests. It applies
// the same uniqueness rules the Postgres schema enforces.
type memRepo struct {
	mu        sync.Mutex
	scanTypes map[uuid.UUID]*scan.ScanType
	scans     map[uuid.UUID]*scan.Scan
	bookings  map[uuid.UUID]*scan.Booking
}

func newMemRepo() *memRepo {
	return &memRepo{
		scanTypes: make(map[uuid.UUID]*scan.ScanType),
		scans:     make(map[uuid.UUID]*scan.Scan),
		bookings:  make(map[uuid.UUID]*scan.Booking),
	}
}

func (m *memRepo) CreateScanType(_ context.Context, st *scan.ScanType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.scanTypes {
		if strings.EqualFold(other.Name, st.Name) {
			return scan.ErrDuplicateScanType
		}
	}
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	st.CreatedAt = time.Now().UTC()
	st.UpdatedAt = st.CreatedAt
	cp := *st
	m.scanTypes[st.ID] = &cp
	return nil
}

func (m *memRepo) UpdateScanType(_ context.Context, st *scan.ScanType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scanTypes[st.ID]; !ok {
		return scan.ErrScanTypeNotFound
	}
	cp := *st
	m.scanTypes[st.ID] = &cp
	return nil
}

func (m *memRepo) DeleteScanType(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scanTypes[id]; !ok {
		return scan.ErrScanTypeNotFound
	}
	delete(m.scanTypes, id)
	return nil
}

func (m *memRepo) GetScanTypeByID(_ context.Context, id uuid.UUID) (*scan.ScanType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.scanTypes[id]
	if !ok {
		return nil, scan.ErrScanTypeNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memRepo) GetScanTypeByName(_ context.Context, name string) (*scan.ScanType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.scanTypes {
		if strings.EqualFold(st.Name, name) {
			cp := *st
			return &cp, nil
		}
	}
	return nil, scan.ErrScanTypeNotFound
}

func (m *memRepo) ListScanTypes(_ context.Context) ([]scan.ScanType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]scan.ScanType, 0, len(m.scanTypes))
	for _, st := range m.scanTypes {
		out = append(out, *st)
	}
	return out, nil
}

func (m *memRepo) CountScansForType(_ context.Context, typeName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sc := range m.scans {
		if sc.ScanType == typeName {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CreateScan(_ context.Context, s *scan.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.scans {
		if other.ScanType == s.ScanType && other.Date.Equal(s.Date) && other.StartTime == s.StartTime {
			return scan.ErrDuplicateScan
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.scans[s.ID] = &cp
	return nil
}

func (m *memRepo) UpdateScan(_ context.Context, s *scan.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scans[s.ID]; !ok {
		return scan.ErrScanNotFound
	}
	cp := *s
	m.scans[s.ID] = &cp
	return nil
}

func (m *memRepo) DeleteScan(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scans[id]; !ok {
		return scan.ErrScanNotFound
	}
	delete(m.scans, id)
	return nil
}

func (m *memRepo) GetScanByID(_ context.Context, id uuid.UUID) (*scan.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scans[id]
	if !ok {
		return nil, scan.ErrScanNotFound
	}
	cp := *sc
	return &cp, nil
}

func (m *memRepo) ListScans(_ context.Context, f scan.ScanFilter) ([]scan.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []scan.Scan
	for _, sc := range m.scans {
		if f.Date != nil && !sc.Date.Equal(*f.Date) {
			continue
		}
		if f.From != nil && sc.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && sc.Date.After(*f.To) {
			continue
		}
		if f.ScanType != "" && !strings.EqualFold(sc.ScanType, f.ScanType) {
			continue
		}
		if f.OnlyAvailable && sc.BookedSlots >= sc.TotalSlots {
			continue
		}
		out = append(out, *sc)
	}
	return out, nil
}

func (m *memRepo) InsertBooking(_ context.Context, b *scan.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.bookings {
		if other.ScanID == b.ScanID && other.SlotNumber == b.SlotNumber && other.Status == scan.StatusConfirmed {
			return scan.ErrSlotTaken
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.BookedAt = time.Now().UTC()
	b.UpdatedAt = b.BookedAt
	cp := *b
	m.bookings[b.ID] = &cp
	m.recountLocked(b.ScanID)
	return nil
}

func (m *memRepo) GetBookingByID(_ context.Context, id uuid.UUID) (*scan.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, scan.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memRepo) GetConfirmedBooking(_ context.Context, scanID uuid.UUID, slotNumber int) (*scan.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ScanID == scanID && b.SlotNumber == slotNumber && b.Status == scan.StatusConfirmed {
			cp := *b
			return &cp, nil
		}
	}
	return nil, scan.ErrBookingNotFound
}

func (m *memRepo) GetConfirmedBookingForUser(_ context.Context, scanID uuid.UUID, userID string) (*scan.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ScanID == scanID && b.Status == scan.StatusConfirmed && b.UserID != nil && *b.UserID == userID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, scan.ErrBookingNotFound
}

func (m *memRepo) UpdateBookingStatus(_ context.Context, id uuid.UUID, from, to scan.BookingStatus) (*scan.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from {
		return nil, scan.ErrBookingNotFound
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	m.recountLocked(b.ScanID)
	cp := *b
	return &cp, nil
}

func (m *memRepo) ListBookingsForScan(_ context.Context, scanID uuid.UUID) ([]scan.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []scan.Booking
	for _, b := range m.bookings {
		if b.ScanID == scanID && b.Status == scan.StatusConfirmed {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memRepo) ListBookingsForScans(_ context.Context, scanIDs []uuid.UUID) (map[uuid.UUID][]scan.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID][]scan.Booking)
	for _, id := range scanIDs {
		for _, b := range m.bookings {
			if b.ScanID == id && b.Status == scan.StatusConfirmed {
				out[id] = append(out[id], *b)
			}
		}
	}
	return out, nil
}

func (m *memRepo) ListBookingsForUser(_ context.Context, userID string) ([]scan.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []scan.Booking
	for _, b := range m.bookings {
		if b.Status == scan.StatusConfirmed && b.UserID != nil && *b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memRepo) ListBookingsBetween(_ context.Context, from, to time.Time) ([]scan.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []scan.Booking
	for _, b := range m.bookings {
		if b.Status == scan.StatusConfirmed && !b.ScanDate.Before(from) && !b.ScanDate.After(to) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memRepo) CountConfirmedBookings(_ context.Context, scanID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bookings {
		if b.ScanID == scanID && b.Status == scan.StatusConfirmed {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) recountLocked(scanID uuid.UUID) {
	if sc, ok := m.scans[scanID]; ok {
		n := 0
		for _, b := range m.bookings {
			if b.ScanID == scanID && b.Status == scan.StatusConfirmed {
				n++
			}
		}
		sc.BookedSlots = n
	}
}

var _ scan.Repository = (*memRepo)(nil)

// Test server wiring

const testIssuer = "https://sso.example.com/realms/carescan"

type testServer struct {
	handler    http.Handler
	repo       *memRepo
	adminToken string
	userToken  string
	userID     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	verifier := auth.NewVerifierWithKeyfunc(testIssuer, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	})

	repo := newMemRepo()
	svc := scan.NewService(repo, redisclient.NoopLocker{}, zerolog.Nop())

	handler := NewRouter(RouterConfig{
		Service: svc,
		Auth:    auth.NewMiddleware(verifier),
		Logger:  zerolog.Nop(),
		Env:     "test",
		Version: "test",
	})

	return &testServer{
		handler:    handler,
		repo:       repo,
		adminToken: signTestToken(t, key, "admin-1", "Ada Admin", []string{"admin"}),
		userToken:  signTestToken(t, key, "user-42", "Sam Carter", []string{"user"}),
		userID:     "user-42",
	}
}

func signTestToken(t *testing.T, key *rsa.PrivateKey, subject, name string, roles []string) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":  testIssuer,
		"sub":  subject,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"name": name,
		"realm_access": map[string]any{
			"roles": roles,
		},
	})

	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

// seedScanBlock inserts a type and a scan block directly, bypassing the
// service validation, and returns the block.
func (ts *testServer) seedScanBlock(t *testing.T, typeName string, date time.Time, startTime string, duration, totalSlots int) *scan.Scan {
	t.Helper()
	ctx := context.Background()

	if _, err := ts.repo.GetScanTypeByName(ctx, typeName); err != nil {
		st := &scan.ScanType{Name: typeName, Duration: duration, CreatedBy: "admin-1"}
		require.NoError(t, ts.repo.CreateScanType(ctx, st))
	}

	start, err := scan.ParseClock(startTime)
	require.NoError(t, err)
	sc := &scan.Scan{
		ScanType:   typeName,
		Date:       date,
		StartTime:  startTime,
		EndTime:    scan.FormatClock(start + totalSlots*duration),
		Duration:   duration,
		TotalSlots: totalSlots,
		CreatedBy:  "admin-1",
	}
	require.NoError(t, ts.repo.CreateScan(ctx, sc))
	return sc
}

func futureDate() time.Time {
	n := time.Now().UTC().AddDate(0, 0, 7)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}
