package identity

import (
	"context"
	"errors"
	"testing"

	domain "uzima-portal/internal/domain/identity"
)

type fakeSession struct {
	id string
	ok bool
}

func (f fakeSession) CurrentIdentityID(_ context.Context) (string, bool) {
	return f.id, f.ok
}

type fakeIdentityRepo struct {
	identities map[string]domain.Identity
	byEmail    map[string]string

	provisioned int // ProvisionRole 寫入次數
	patched     int
	createErr   error
	findErr     error
}

func newFakeIdentityRepo(idents ...domain.Identity) *fakeIdentityRepo {
	repo := &fakeIdentityRepo{
		identities: make(map[string]domain.Identity),
		byEmail:    make(map[string]string),
	}
	for _, i := range idents {
		repo.identities[i.ID] = i
		repo.byEmail[i.Email] = i.ID
	}
	return repo
}

func (f *fakeIdentityRepo) FindByID(_ context.Context, id string) (domain.Identity, error) {
	if f.findErr != nil {
		return domain.Identity{}, f.findErr
	}
	ident, ok := f.identities[id]
	if !ok {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	return ident, nil
}

func (f *fakeIdentityRepo) FindByEmail(_ context.Context, email string) (domain.Identity, error) {
	id, ok := f.byEmail[email]
	if !ok {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	return f.identities[id], nil
}

func (f *fakeIdentityRepo) Create(_ context.Context, email, passwordHash string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	if _, exists := f.byEmail[email]; exists {
		return "", domain.ErrDuplicateEmail
	}
	id := "u-" + email
	f.identities[id] = domain.Identity{ID: id, Email: email, Password: passwordHash}
	f.byEmail[email] = id
	return id, nil
}

func (f *fakeIdentityRepo) ProvisionRole(_ context.Context, id string, role domain.Role, fullName string) (bool, error) {
	ident, ok := f.identities[id]
	if !ok {
		return false, domain.ErrIdentityNotFound
	}
	if ident.Provisioned() {
		return false, nil
	}
	ident.Role = role
	if fullName != "" {
		ident.FullName = fullName
	}
	ident.IsActive = true
	f.identities[id] = ident
	f.provisioned++
	return true, nil
}

func (f *fakeIdentityRepo) Patch(_ context.Context, id string, patch IdentityPatch) (domain.Identity, error) {
	ident, ok := f.identities[id]
	if !ok {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	if patch.FullName != nil {
		ident.FullName = *patch.FullName
	}
	if patch.Email != nil {
		ident.Email = *patch.Email
	}
	if patch.PhoneNumber != nil {
		ident.PhoneNumber = *patch.PhoneNumber
	}
	f.identities[id] = ident
	f.patched++
	return ident, nil
}

func TestCompleteProfileFirstCall(t *testing.T) {
	repo := newFakeIdentityRepo(domain.Identity{ID: "u-1", Email: "user@example.com"})
	uc := NewCompleteProfileUseCase(fakeSession{id: "u-1", ok: true}, repo)

	id, err := uc.Execute(context.Background(), CompleteProfileInput{
		Role:     domain.RolePhysician,
		FullName: "Dr. Jane",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "u-1" {
		t.Fatalf("expected identity id u-1, got %q", id)
	}

	stored := repo.identities["u-1"]
	if stored.Role != domain.RolePhysician {
		t.Errorf("role = %q, want physician", stored.Role)
	}
	if stored.FullName != "Dr. Jane" {
		t.Errorf("fullName = %q, want Dr. Jane", stored.FullName)
	}
	if !stored.IsActive {
		t.Error("identity should be active after provisioning")
	}
}

func TestCompleteProfileIdempotent(t *testing.T) {
	repo := newFakeIdentityRepo(domain.Identity{ID: "u-1", Email: "user@example.com"})
	uc := NewCompleteProfileUseCase(fakeSession{id: "u-1", ok: true}, repo)

	if _, err := uc.Execute(context.Background(), CompleteProfileInput{Role: domain.RolePatient, FullName: "First"}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	// 第二次使用不同角色重送：不得寫入，仍需回傳成功與同一識別碼。
	id, err := uc.Execute(context.Background(), CompleteProfileInput{Role: domain.RoleAdmin, FullName: "Second"})
	if err != nil {
		t.Fatalf("retry should succeed, got: %v", err)
	}
	if id != "u-1" {
		t.Fatalf("expected identity id u-1, got %q", id)
	}
	if repo.provisioned != 1 {
		t.Fatalf("expected exactly one provisioning write, got %d", repo.provisioned)
	}

	stored := repo.identities["u-1"]
	if stored.Role != domain.RolePatient {
		t.Errorf("first write must win, role = %q", stored.Role)
	}
	if stored.FullName != "First" {
		t.Errorf("fullName = %q, want First", stored.FullName)
	}
	if !stored.IsActive {
		t.Error("identity should stay active")
	}
}

func TestCompleteProfilePreconditions(t *testing.T) {
	repo := newFakeIdentityRepo(domain.Identity{ID: "u-1", Email: "user@example.com"})

	uc := NewCompleteProfileUseCase(fakeSession{ok: false}, repo)
	if _, err := uc.Execute(context.Background(), CompleteProfileInput{Role: domain.RolePatient}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}

	uc = NewCompleteProfileUseCase(fakeSession{id: "ghost", ok: true}, repo)
	if _, err := uc.Execute(context.Background(), CompleteProfileInput{Role: domain.RolePatient}); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}

	uc = NewCompleteProfileUseCase(fakeSession{id: "u-1", ok: true}, repo)
	if _, err := uc.Execute(context.Background(), CompleteProfileInput{Role: "superuser"}); !errors.Is(err, domain.ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
	if repo.provisioned != 0 {
		t.Errorf("no write should happen on precondition failure, got %d", repo.provisioned)
	}
}

func TestCompleteProfileWithoutFullName(t *testing.T) {
	repo := newFakeIdentityRepo(domain.Identity{ID: "u-1", Email: "user@example.com", FullName: "Kept"})
	uc := NewCompleteProfileUseCase(fakeSession{id: "u-1", ok: true}, repo)

	if _, err := uc.Execute(context.Background(), CompleteProfileInput{Role: domain.RoleAdmin}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := repo.identities["u-1"]
	if stored.FullName != "Kept" {
		t.Errorf("empty fullName must not clobber existing value, got %q", stored.FullName)
	}
	if stored.Role != domain.RoleAdmin || !stored.IsActive {
		t.Errorf("role/is_active should still be set: %+v", stored)
	}
}

func TestCurrentUser(t *testing.T) {
	repo := newFakeIdentityRepo(domain.Identity{ID: "u-1", Email: "user@example.com", Role: domain.RolePatient, IsActive: true})

	uc := NewCurrentUserUseCase(fakeSession{id: "u-1", ok: true}, repo)
	ident, ok := uc.Execute(context.Background())
	if !ok || ident.ID != "u-1" {
		t.Fatalf("expected current user u-1, got %+v ok=%t", ident, ok)
	}

	uc = NewCurrentUserUseCase(fakeSession{ok: false}, repo)
	if _, ok := uc.Execute(context.Background()); ok {
		t.Error("expected no current user without a session")
	}
}

func TestUpdateUserLeavesRoleAlone(t *testing.T) {
	repo := newFakeIdentityRepo(domain.Identity{ID: "u-1", Email: "user@example.com", Role: domain.RolePatient, IsActive: true})
	uc := NewUpdateUserUseCase(repo)

	name := "New Name"
	phone := "+254700000000"
	ident, err := uc.Execute(context.Background(), "u-1", IdentityPatch{FullName: &name, PhoneNumber: &phone})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.FullName != "New Name" || ident.PhoneNumber != "+254700000000" {
		t.Errorf("patch not applied: %+v", ident)
	}
	if ident.Role != domain.RolePatient {
		t.Errorf("patch must not touch role, got %q", ident.Role)
	}
}
