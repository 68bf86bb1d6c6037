package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/model"
)

var zeroSha = strings.Repeat("0", 64)

func validRelease() ReleaseInput {
	return ReleaseInput{
		Module:    "Winsible",
		Platform:  "Windows-x64",
		Version:   "1.4.0",
		ObjectKey: "winsible/1.4.0/winsible.zip",
		Sha256:    strings.ToUpper(zeroSha),
		SizeBytes: 1024,
	}
}

func TestCreateRelease(t *testing.T) {
	f := newFixture(t)

	release, err := f.catalog.CreateRelease(context.Background(), testTenant, "admin", validRelease())
	require.NoError(t, err)
	assert.Equal(t, "winsible", release.Module)
	assert.Equal(t, "windows-x64", release.Platform)
	assert.Equal(t, model.DefaultChannel, release.Channel)
	assert.Equal(t, model.ReleaseStatusActive, release.Status)
	assert.Equal(t, zeroSha, release.Sha256)
	assert.Equal(t, "admin", release.CreatedBy)

	got, err := f.catalog.GetRelease(context.Background(), testTenant, release.ID)
	require.NoError(t, err)
	assert.Equal(t, release.ID, got.ID)

	other, err := f.catalog.GetRelease(context.Background(), "t2", release.ID)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestCreateReleaseValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *ReleaseInput)
		field  string
	}{
		{name: "missing_module", mutate: func(in *ReleaseInput) { in.Module = "" }, field: "module"},
		{name: "missing_object_key", mutate: func(in *ReleaseInput) { in.ObjectKey = " " }, field: "object_key"},
		{name: "bad_version", mutate: func(in *ReleaseInput) { in.Version = "latest" }, field: "version"},
		{name: "short_sha", mutate: func(in *ReleaseInput) { in.Sha256 = "abc123" }, field: "sha256"},
		{name: "negative_size", mutate: func(in *ReleaseInput) { in.SizeBytes = -1 }, field: "size_bytes"},
		{name: "unknown_status", mutate: func(in *ReleaseInput) { in.Status = "published" }, field: "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			input := validRelease()
			tt.mutate(&input)

			_, err := f.catalog.CreateRelease(context.Background(), testTenant, "admin", input)
			appErr, ok := apperror.As(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeBadRequest, appErr.Code)
			assert.Equal(t, tt.field, appErr.Details["field"])
		})
	}
}

func (f *fixture) release(module, platform, channel, status string) *model.ArtifactRelease {
	f.t.Helper()
	input := validRelease()
	input.Module = module
	input.Platform = platform
	input.Channel = channel
	input.Status = status
	release, err := f.catalog.CreateRelease(context.Background(), testTenant, "admin", input)
	require.NoError(f.t, err)
	return release
}

func TestUserAssignmentWinsOverDefault(t *testing.T) {
	f := newFixture(t)
	r1 := f.release("winsible", "windows-x64", "", "")
	r2 := f.release("winsible", "windows-x64", "", "")

	_, err := f.assignments.UpsertAssignment(context.Background(), testTenant, "admin", AssignmentInput{
		Module: "winsible", Platform: "windows-x64", ReleaseID: r1.ID,
	})
	require.NoError(t, err)
	_, err = f.assignments.UpsertAssignment(context.Background(), testTenant, "admin", AssignmentInput{
		UserID: testUser, Module: "winsible", Platform: "windows-x64", ReleaseID: r2.ID,
	})
	require.NoError(t, err)

	scope := AssignmentScope{TenantID: testTenant, UserID: testUser, Module: "WINSIBLE", Platform: "windows-x64"}
	effective, err := f.assignments.GetEffectiveAssignment(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, r2.ID, effective.Assignment.ReleaseID)
	assert.Equal(t, AssignmentSourceUser, effective.Source)

	scope.UserID = "u2"
	effective, err = f.assignments.GetEffectiveAssignment(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, effective.Assignment.ReleaseID)
	assert.Equal(t, AssignmentSourceTenantDefault, effective.Source)

	lookup, err := f.assignments.GetAssignments(context.Background(), AssignmentScope{
		TenantID: testTenant, UserID: testUser, Module: "winsible", Platform: "windows-x64",
	})
	require.NoError(t, err)
	require.NotNil(t, lookup.UserAssignment)
	require.NotNil(t, lookup.DefaultAssignment)
	assert.Equal(t, r2.ID, lookup.EffectiveAssignment.ReleaseID)
	assert.True(t, lookup.DefaultAssignment.IsDefault)
	assert.Nil(t, lookup.DefaultAssignment.UserID)
}

func TestUpsertAssignmentKeepsOneRowPerScope(t *testing.T) {
	f := newFixture(t)
	r1 := f.release("winsible", "windows-x64", "", "")
	r2 := f.release("winsible", "windows-x64", "", "")

	for _, id := range []uint{r1.ID, r2.ID} {
		_, err := f.assignments.UpsertAssignment(context.Background(), testTenant, "admin", AssignmentInput{
			Module: "winsible", Platform: "windows-x64", Channel: "stable", ReleaseID: id,
		})
		require.NoError(t, err)
	}
	for _, id := range []uint{r1.ID, r2.ID} {
		_, err := f.assignments.UpsertAssignment(context.Background(), testTenant, "admin", AssignmentInput{
			UserID: testUser, Module: "winsible", Platform: "windows-x64", ReleaseID: id,
		})
		require.NoError(t, err)
	}

	var defaults, users int64
	f.db.Model(&model.ArtifactAssignment{}).Where("user_id IS NULL").Count(&defaults)
	f.db.Model(&model.ArtifactAssignment{}).Where("user_id = ?", testUser).Count(&users)
	assert.EqualValues(t, 1, defaults)
	assert.EqualValues(t, 1, users)

	effective, err := f.assignments.GetEffectiveAssignment(context.Background(), AssignmentScope{
		TenantID: testTenant, Module: "winsible", Platform: "windows-x64",
	})
	require.NoError(t, err)
	assert.Equal(t, r2.ID, effective.Assignment.ReleaseID)
}

func TestUpsertAssignmentRejections(t *testing.T) {
	f := newFixture(t)
	r1 := f.release("winsible", "windows-x64", "beta", "")

	_, err := f.assignments.UpsertAssignment(context.Background(), testTenant, "admin", AssignmentInput{
		Module: "winsible", Platform: "windows-x64", ReleaseID: r1.ID,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeArtifactScopeMismatch))

	_, err = f.assignments.UpsertAssignment(context.Background(), testTenant, "admin", AssignmentInput{
		Module: "winsible", Platform: "windows-x64", ReleaseID: 999,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))

	_, err = f.assignments.UpsertAssignment(context.Background(), "t2", "admin", AssignmentInput{
		Module: "winsible", Platform: "windows-x64", Channel: "beta", ReleaseID: r1.ID,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))

	_, err = f.assignments.UpsertAssignment(context.Background(), testTenant, "admin", AssignmentInput{
		Module: "winsible", Platform: "windows-x64",
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeBadRequest))
}

func TestGetEffectiveAssignmentNone(t *testing.T) {
	f := newFixture(t)
	effective, err := f.assignments.GetEffectiveAssignment(context.Background(), AssignmentScope{
		TenantID: testTenant, UserID: testUser, Module: "winsible", Platform: "linux-x64",
	})
	require.NoError(t, err)
	assert.Nil(t, effective)

	_, err = f.assignments.GetAssignments(context.Background(), AssignmentScope{TenantID: testTenant, Module: "winsible"})
	assert.True(t, apperror.HasCode(err, apperror.CodeBadRequest))
}
