package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashid-platform/auth-service/internal/common"
	"github.com/ashid-platform/auth-service/internal/token"
)

func testRecord(subject, jti string, kind token.Kind) Record {
	now := time.Now()
	return Record{
		Subject:   subject,
		TokenID:   jti,
		Kind:      kind,
		IssuedAt:  now,
		ExpiresAt: now.Add(30 * time.Minute),
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := testRecord("42", "jti-1", token.KindAccess)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, err := s.Get(ctx, "42", "jti-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Subject != "42" || got.TokenID != "jti-1" || got.Kind != token.KindAccess {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.StoredAt.IsZero() {
		t.Fatal("StoredAt not set on Put")
	}
	if got.Revoked {
		t.Fatal("fresh record must not be revoked")
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "42", "nope")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := testRecord("42", "jti-1", token.KindAccess)
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	rec.Kind = token.KindRefresh
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, err := s.Get(ctx, "42", "jti-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Kind != token.KindRefresh {
		t.Fatalf("upsert did not overwrite: %+v", got)
	}
}

func TestMemoryStore_MarkRevoked(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, testRecord("42", "jti-1", token.KindAccess)); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	if err := s.MarkRevoked(ctx, "42", "jti-1"); err != nil {
		t.Fatalf("MarkRevoked error: %v", err)
	}
	got, _ := s.Get(ctx, "42", "jti-1")
	if !got.Revoked || got.RevokedAt == nil {
		t.Fatalf("record not revoked: %+v", got)
	}
	first := *got.RevokedAt

	// Idempotent: second call succeeds and keeps the original timestamp.
	if err := s.MarkRevoked(ctx, "42", "jti-1"); err != nil {
		t.Fatalf("second MarkRevoked error: %v", err)
	}
	got, _ = s.Get(ctx, "42", "jti-1")
	if !got.RevokedAt.Equal(first) {
		t.Fatalf("revoked_at changed on repeat revoke: %v vs %v", got.RevokedAt, first)
	}
}

func TestMemoryStore_MarkRevokedMissing(t *testing.T) {
	s := NewMemoryStore()
	err := s.MarkRevoked(context.Background(), "42", "nope")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListByUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, jti := range []string{"b", "a"} {
		if err := s.Put(ctx, testRecord("42", jti, token.KindAccess)); err != nil {
			t.Fatalf("Put error: %v", err)
		}
	}
	if err := s.Put(ctx, testRecord("7", "other", token.KindRefresh)); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	ids, err := s.ListByUser(ctx, "42")
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
