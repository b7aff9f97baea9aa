package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb, "qs"), rdb
}

func testSession(sessionID, userID string, deviceByte byte) *Session {
	var hash [32]byte
	for i := range hash {
		hash[i] = deviceByte
	}

	now := time.Now()
	return &Session{
		SessionID:      sessionID,
		UserID:         userID,
		IP:             "203.0.113.7",
		UserAgent:      "test-agent/1.0",
		Role:           "user",
		DeviceHash:     hash,
		CreatedAt:      now.Unix(),
		LastActivityAt: now.Unix(),
		ExpiresAt:      now.Add(7 * 24 * time.Hour).Unix(),
		Active:         true,
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sid-1", "u1", 0xAA)
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.UserID != "u1" || got.IP != sess.IP || got.UserAgent != sess.UserAgent || got.Role != "user" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.Active || got.LogoutReason != ReasonNone {
		t.Fatalf("fresh session not active: %+v", got)
	}
	if got.DeviceHash != sess.DeviceHash {
		t.Fatal("device hash mismatch")
	}
}

func TestRevokeRetainsAuditRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sid-1", "u1", 0xAA)
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	logoutAt := time.Now().Unix()
	ok, err := store.Revoke(ctx, "u1", "sid-1", ReasonUserLogout, logoutAt, time.Hour)
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if !ok {
		t.Fatal("expected revoke to report a live session")
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("revoked record must be retained: %v", err)
	}
	if got.Active {
		t.Fatal("revoked session still active")
	}
	if got.LogoutReason != ReasonUserLogout || got.LogoutAt != logoutAt {
		t.Fatalf("logout metadata not stamped: %+v", got)
	}

	// Idempotent second revoke.
	ok, err = store.Revoke(ctx, "u1", "sid-1", ReasonUserLogout, logoutAt, time.Hour)
	if err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}
	if ok {
		t.Fatal("second revoke must be a no-op")
	}
}

func TestRevokeOneSessionDoesNotAffectAnother(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a := testSession("sid-a", "u1", 0x01)
	b := testSession("sid-b", "u1", 0x02)
	for _, sess := range []*Session{a, b} {
		if err := store.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	if _, err := store.Revoke(ctx, "u1", "sid-a", ReasonUserLogout, time.Now().Unix(), time.Hour); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	got, err := store.Get(ctx, "sid-b")
	if err != nil {
		t.Fatalf("get sid-b failed: %v", err)
	}
	if !got.Live(time.Now().Unix()) {
		t.Fatal("revoking session A must not affect session B")
	}
}

func TestRevokeAllExceptCurrentLeavesOne(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"sid-a", "sid-b", "sid-c"} {
		if err := store.Save(ctx, testSession(id, "u1", byte(i+1)), time.Hour); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	n, err := store.RevokeAllForUser(ctx, "u1", "sid-b", ReasonAllDevices, time.Now().Unix(), time.Hour)
	if err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked, got %d", n)
	}

	active, err := store.ListActive(ctx, "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 1 || active[0].SessionID != "sid-b" {
		t.Fatalf("expected exactly sid-b to survive, got %+v", active)
	}
}

func TestExtendReactivatesAndClearsLogoutFields(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sid-1", "u1", 0xAA)
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := store.Revoke(ctx, "u1", "sid-1", ReasonUserLogout, time.Now().Unix(), time.Hour); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	newActivity := time.Now().Unix()
	newExpiry := time.Now().Add(7 * 24 * time.Hour).Unix()
	if err := store.Extend(ctx, "u1", "sid-1", sess.DeviceHash, newActivity, newExpiry, time.Hour); err != nil {
		t.Fatalf("extend failed: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Active || got.LogoutAt != 0 || got.LogoutReason != ReasonNone {
		t.Fatalf("extend must reactivate and clear logout fields: %+v", got)
	}
	if got.LastActivityAt != newActivity || got.ExpiresAt != newExpiry {
		t.Fatalf("extend must slide timestamps: %+v", got)
	}
	if got.CreatedAt != sess.CreatedAt {
		t.Fatal("extend must not change creation time")
	}

	active, err := store.ListActive(ctx, "u1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("reactivated session missing from index: %d", len(active))
	}
}

func TestFindByDeviceResolvesSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sid-1", "u1", 0xAA)
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	id, err := store.FindByDevice(ctx, "u1", sess.DeviceHash)
	if err != nil {
		t.Fatalf("find by device failed: %v", err)
	}
	if id != "sid-1" {
		t.Fatalf("expected sid-1, got %q", id)
	}

	var other [32]byte
	if _, err := store.FindByDevice(ctx, "u1", other); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown device must be ErrNotFound, got %v", err)
	}
}

func TestTouchAdvancesActivityOnly(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sid-1", "u1", 0xAA)
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	later := sess.LastActivityAt + 90
	if err := store.Touch(ctx, "sid-1", later); err != nil {
		t.Fatalf("touch failed: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.LastActivityAt != later {
		t.Fatalf("activity not advanced: %d", got.LastActivityAt)
	}
	if got.ExpiresAt != sess.ExpiresAt {
		t.Fatal("touch must not move absolute expiry")
	}
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	sess := testSession("sid-1", "u1", 0xAA)
	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	for _, cut := range []int{1, fixedHeaderSize - 1, len(data) - 1} {
		if _, err := Decode(data[:cut]); !errors.Is(err, ErrCorruptRecord) {
			t.Fatalf("truncation at %d not rejected: %v", cut, err)
		}
	}
}
