package auth

import (
	"context"
	"errors"
	"testing"
)

func TestDisabledModePassesThrough(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeDisabled})
	if err != nil {
		t.Fatalf("创建认证服务失败: %v", err)
	}
	subject, err := svc.Authenticate(context.Background(), "")
	if err != nil {
		t.Fatalf("disabled 模式不应拒绝请求: %v", err)
	}
	if subject == nil {
		t.Fatal("expected anonymous subject")
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	svc, err := NewService(Config{
		Mode: ModeAPIKey,
		Keys: []KeySeed{
			{Key: "dispatch-secret", Name: "dispatch"},
			{Key: "revoked-secret", Name: "old", Disabled: true},
		},
	})
	if err != nil {
		t.Fatalf("创建认证服务失败: %v", err)
	}
	ctx := context.Background()

	subject, err := svc.Authenticate(ctx, "dispatch-secret")
	if err != nil {
		t.Fatalf("合法 key 认证失败: %v", err)
	}
	if subject.Name != "dispatch" {
		t.Fatalf("subject = %s", subject.Name)
	}

	// Bearer 前缀应被接受。
	if _, err := svc.Authenticate(ctx, "Bearer dispatch-secret"); err != nil {
		t.Fatalf("Bearer 形式认证失败: %v", err)
	}

	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "wrong"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "revoked-secret"); !errors.Is(err, ErrKeyRevoked) {
		t.Fatalf("expected ErrKeyRevoked, got %v", err)
	}
}

func TestAPIKeyModeRequiresKeys(t *testing.T) {
	if _, err := NewService(Config{Mode: ModeAPIKey}); err == nil {
		t.Fatal("expected error for apikey mode without keys")
	}
}

func TestSubjectContextRoundTrip(t *testing.T) {
	ctx := WithSubject(context.Background(), &Subject{Name: "dispatch"})
	subject := SubjectFromContext(ctx)
	if subject == nil || subject.Name != "dispatch" {
		t.Fatalf("subject not carried through context: %+v", subject)
	}
	if SubjectFromContext(context.Background()) != nil {
		t.Fatal("empty context must not yield a subject")
	}
}
