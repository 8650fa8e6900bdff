package mfa

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"zero-trust-session-core/internal/mfa/domain"
	"zero-trust-session-core/internal/mfa/repository"
	"zero-trust-session-core/internal/security"

	"golang.org/x/crypto/bcrypt"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T) (*Engine, *repository.MemoryRepository, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)}
	repo := repository.NewMemoryRepository()
	e := NewEngine(repo, security.NewHasher(bcrypt.MinCost), nil, Options{Issuer: "TestCo", Now: clk.now})
	return e, repo, clk
}

func enroll(t *testing.T, e *Engine, clk *clock, userID string) *SetupResult {
	t.Helper()
	ctx := context.Background()
	res, err := e.Setup(ctx, userID, userID+"@example.com")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	code, err := GenerateCode(res.Secret, clk.now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	ok, err := e.ConfirmSetup(ctx, userID, code)
	if err != nil || !ok {
		t.Fatalf("ConfirmSetup = %v, %v", ok, err)
	}
	return res
}

var backupCodeRe = regexp.MustCompile(`^[0-9a-f]{8}$`)

func TestSetup_ReturnsSecretURIAndCodes(t *testing.T) {
	e, _, _ := newTestEngine(t)
	res, err := e.Setup(context.Background(), "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if len(res.Secret) != 32 {
		t.Errorf("secret length = %d, want 32 base32 chars (160 bits)", len(res.Secret))
	}
	if !strings.HasPrefix(res.ProvisioningURI, "otpauth://totp/") || !strings.Contains(res.ProvisioningURI, "issuer=TestCo") {
		t.Errorf("ProvisioningURI = %q", res.ProvisioningURI)
	}
	if !bytes.HasPrefix(res.QRCodePNG, []byte("\x89PNG")) {
		t.Error("QRCodePNG is not a PNG")
	}
	if len(res.BackupCodes) != BackupCodeCount {
		t.Fatalf("got %d backup codes, want %d", len(res.BackupCodes), BackupCodeCount)
	}
	seen := map[string]bool{}
	for _, c := range res.BackupCodes {
		if !backupCodeRe.MatchString(c) {
			t.Errorf("backup code %q is not 8 hex chars", c)
		}
		if seen[c] {
			t.Errorf("duplicate backup code %q", c)
		}
		seen[c] = true
	}
	enabled, _ := e.IsEnabled(context.Background(), "u1")
	if enabled {
		t.Error("MFA enabled before confirmation")
	}
}

func TestSetup_StoresOnlyHashes(t *testing.T) {
	e, repo, _ := newTestEngine(t)
	res, _ := e.Setup(context.Background(), "u1", "")
	cred, _ := repo.Get(context.Background(), "u1")
	for i, h := range cred.BackupCodeHashes {
		if h == res.BackupCodes[i] {
			t.Fatal("backup code stored in plaintext")
		}
	}
}

func TestConfirmSetup(t *testing.T) {
	ctx := context.Background()
	e, _, clk := newTestEngine(t)

	if _, err := e.ConfirmSetup(ctx, "nobody", "123456"); !errors.Is(err, ErrNoPendingSetup) {
		t.Errorf("confirm without setup: want ErrNoPendingSetup, got %v", err)
	}

	res, _ := e.Setup(ctx, "u1", "")
	ok, err := e.ConfirmSetup(ctx, "u1", "000000")
	if err != nil || ok {
		t.Errorf("wrong code: ok=%v err=%v", ok, err)
	}
	code, _ := GenerateCode(res.Secret, clk.now())
	ok, err = e.ConfirmSetup(ctx, "u1", code)
	if err != nil || !ok {
		t.Fatalf("ConfirmSetup: ok=%v err=%v", ok, err)
	}
	if enabled, _ := e.IsEnabled(ctx, "u1"); !enabled {
		t.Error("MFA not enabled after confirmation")
	}
	if _, err := e.Setup(ctx, "u1", ""); !errors.Is(err, ErrAlreadyEnabled) {
		t.Errorf("second Setup: want ErrAlreadyEnabled, got %v", err)
	}
	if _, err := e.ConfirmSetup(ctx, "u1", code); !errors.Is(err, ErrNoPendingSetup) {
		t.Errorf("confirm after enable: want ErrNoPendingSetup, got %v", err)
	}
}

func TestConfirmSetup_Expired(t *testing.T) {
	ctx := context.Background()
	e, _, clk := newTestEngine(t)
	res, _ := e.Setup(ctx, "u1", "")
	clk.advance(11 * time.Minute)
	code, _ := GenerateCode(res.Secret, clk.now())
	if _, err := e.ConfirmSetup(ctx, "u1", code); !errors.Is(err, ErrNoPendingSetup) {
		t.Errorf("expired setup: want ErrNoPendingSetup, got %v", err)
	}
}

func TestAuthenticate_TOTPWindowAndReplay(t *testing.T) {
	ctx := context.Background()
	e, _, clk := newTestEngine(t)
	res := enroll(t, e, clk, "u1")

	// The confirmation step is spent.
	same, _ := GenerateCode(res.Secret, clk.now())
	r, err := e.Authenticate(ctx, "u1", same)
	if err != nil {
		t.Fatal(err)
	}
	if r.Success || r.Reason != ReasonCodeReused {
		t.Errorf("replayed code: %+v", r)
	}

	// One step ahead is inside the window.
	next, _ := GenerateCode(res.Secret, clk.now().Add(Period))
	r, _ = e.Authenticate(ctx, "u1", next)
	if !r.Success || r.UsedBackupCode {
		t.Errorf("next-step code: %+v", r)
	}

	// Two steps ahead is outside the window.
	clk.advance(2 * Period)
	far, _ := GenerateCode(res.Secret, clk.now().Add(2*Period))
	r, _ = e.Authenticate(ctx, "u1", far)
	if r.Success || r.Reason != ReasonInvalidCode {
		t.Errorf("out-of-window code: %+v", r)
	}

	// Current step is newer than the last used one.
	cur, _ := GenerateCode(res.Secret, clk.now())
	r, _ = e.Authenticate(ctx, "u1", cur)
	if !r.Success {
		t.Errorf("current code: %+v", r)
	}
	// A step older than the last accepted one is rejected even inside the window.
	prev, _ := GenerateCode(res.Secret, clk.now().Add(-Period))
	r, _ = e.Authenticate(ctx, "u1", prev)
	if r.Success {
		t.Errorf("older step accepted: %+v", r)
	}
}

func TestAuthenticate_BackupCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	e, _, clk := newTestEngine(t)
	res := enroll(t, e, clk, "u1")
	code := res.BackupCodes[3]

	r, err := e.Authenticate(ctx, "u1", strings.ToUpper(code[:4])+"-"+code[4:])
	if err != nil {
		t.Fatal(err)
	}
	if !r.Success || !r.UsedBackupCode || r.RemainingBackupCodes != BackupCodeCount-1 {
		t.Fatalf("first use: %+v", r)
	}
	r, _ = e.Authenticate(ctx, "u1", code)
	if r.Success {
		t.Fatal("backup code accepted twice")
	}
	if r.RemainingBackupCodes != BackupCodeCount-1 {
		t.Errorf("remaining = %d", r.RemainingBackupCodes)
	}
}

func TestAuthenticate_BackupCodeConcurrentUse(t *testing.T) {
	ctx := context.Background()
	e, _, clk := newTestEngine(t)
	res := enroll(t, e, clk, "u1")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := e.Authenticate(ctx, "u1", res.BackupCodes[0])
			if err == nil && r.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Errorf("backup code accepted %d times, want 1", successes)
	}
}

func TestAuthenticate_NotEnrolledAndGarbage(t *testing.T) {
	ctx := context.Background()
	e, _, clk := newTestEngine(t)
	r, err := e.Authenticate(ctx, "ghost", "123456")
	if err != nil || r.Success || r.Reason != ReasonNotEnrolled {
		t.Errorf("not enrolled: %+v %v", r, err)
	}
	enroll(t, e, clk, "u1")
	for _, code := range []string{"", "abc", "12345", "1234567", "zzzzzzzz"} {
		r, err := e.Authenticate(ctx, "u1", code)
		if err != nil || r.Success || r.Reason != ReasonInvalidCode {
			t.Errorf("code %q: %+v %v", code, r, err)
		}
	}
}

func TestDisable(t *testing.T) {
	ctx := context.Background()
	e, _, clk := newTestEngine(t)
	res := enroll(t, e, clk, "u1")

	if err := e.Disable(ctx, "u1", ""); !errors.Is(err, ErrAdminRequired) {
		t.Errorf("Disable without admin: %v", err)
	}
	if err := e.Disable(ctx, "u1", "admin-1"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	st, _ := e.Status(ctx, "u1")
	if st.Enabled || st.DisabledBy != "admin-1" || st.DisabledAt == nil {
		t.Errorf("status after disable: %+v", st)
	}
	r, _ := e.Authenticate(ctx, "u1", res.BackupCodes[0])
	if r.Success || r.Reason != ReasonNotEnrolled {
		t.Errorf("authenticate after disable: %+v", r)
	}
	if err := e.Disable(ctx, "u1", "admin-1"); !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("second Disable: want ErrNotEnrolled, got %v", err)
	}

	// Re-enrollment issues a fresh set of codes.
	again := enroll(t, e, clk, "u1")
	if again.Secret == res.Secret {
		t.Error("re-enrollment reused the old secret")
	}
	st, _ = e.Status(ctx, "u1")
	if !st.Enabled || st.RemainingBackupCodes != BackupCodeCount {
		t.Errorf("status after re-enroll: %+v", st)
	}
	if st.DisabledBy != "admin-1" || st.DisabledAt == nil {
		t.Errorf("last disable lost on re-enroll: by=%q at=%v", st.DisabledBy, st.DisabledAt)
	}
}

func TestMalformedSecret(t *testing.T) {
	ctx := context.Background()
	e, repo, clk := newTestEngine(t)
	now := clk.now()
	if _, err := repo.SavePending(ctx, &domain.Credential{UserID: "u1", Secret: "not base32 !!", PendingSince: &now}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ConfirmSetup(ctx, "u1", "123456"); !errors.Is(err, ErrMalformedSecret) {
		t.Errorf("ConfirmSetup: want ErrMalformedSecret, got %v", err)
	}
	if _, err := repo.Enable(ctx, "u1", 0, now); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Authenticate(ctx, "u1", "123456"); !errors.Is(err, ErrMalformedSecret) {
		t.Errorf("Authenticate: want ErrMalformedSecret, got %v", err)
	}
}

func TestSealedSecrets(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)}
	repo := repository.NewMemoryRepository()
	sealer, err := security.NewAEADSealer([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngine(repo, security.NewHasher(bcrypt.MinCost), sealer, Options{Now: clk.now})
	res := enroll(t, e, clk, "u1")

	cred, _ := repo.Get(ctx, "u1")
	if cred.Secret == res.Secret || !strings.HasPrefix(cred.Secret, "v1:") {
		t.Errorf("stored secret not sealed: %q", cred.Secret)
	}

	// An engine without the key cannot read the secret.
	plain := NewEngine(repo, security.NewHasher(bcrypt.MinCost), nil, Options{Now: clk.now})
	code, _ := GenerateCode(res.Secret, clk.now().Add(Period))
	if _, err := plain.Authenticate(ctx, "u1", code); !errors.Is(err, ErrMalformedSecret) {
		t.Errorf("want ErrMalformedSecret, got %v", err)
	}
}
