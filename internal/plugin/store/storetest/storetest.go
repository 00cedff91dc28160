// Package storetest holds behaviour checks shared by every evidence store plugin.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chirino/ufdr-service/internal/model"
	registrystore "github.com/chirino/ufdr-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// Factory returns a migrated store. Checks only touch rows they create, so one
// store may serve every check.
type Factory func(t *testing.T) (registrystore.EvidenceStore, context.Context)

// Run exercises store against the EvidenceStore contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("EvidenceFileLifecycle", func(t *testing.T) { testEvidenceFileLifecycle(t, newStore) })
	t.Run("ListEvidenceFiles", func(t *testing.T) { testListEvidenceFiles(t, newStore) })
	t.Run("HardDeleteCascades", func(t *testing.T) { testHardDelete(t, newStore) })
	t.Run("CaseAssignments", func(t *testing.T) { testCaseAssignments(t, newStore) })
	t.Run("ArtifactSearch", func(t *testing.T) { testArtifactSearch(t, newStore) })
	t.Run("PendingEmbedding", func(t *testing.T) { testPendingEmbedding(t, newStore) })
	t.Run("ChatSessionUpsert", func(t *testing.T) { testChatSessionUpsert(t, newStore) })
	t.Run("Cases", func(t *testing.T) { testCases(t, newStore) })
	t.Run("Summarize", func(t *testing.T) { testSummarize(t, newStore) })
	t.Run("AuditLogs", func(t *testing.T) { testAuditLogs(t, newStore) })
}

func text(s string) *string { return &s }

func createFile(t *testing.T, ctx context.Context, store registrystore.EvidenceStore, caseID *uuid.UUID) *model.EvidenceFile {
	t.Helper()
	file := &model.EvidenceFile{
		ID:          uuid.New(),
		CaseID:      caseID,
		Filename:    "handset.ufdr",
		StoragePath: "evidence/handset.ufdr",
		Meta:        map[string]interface{}{"sha256": "abc", "uploadedBy": "alice"},
	}
	require.NoError(t, store.CreateEvidenceFile(ctx, file))
	return file
}

func testEvidenceFileLifecycle(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)
	file := createFile(t, ctx, store, nil)

	got, err := store.GetEvidenceFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "handset.ufdr", got.Filename)
	assert.Equal(t, "alice", got.Meta["uploadedBy"])

	_, err = store.GetEvidenceFile(ctx, uuid.New())
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf))

	require.NoError(t, store.DeleteEvidenceFile(ctx, file.ID, false))
	_, err = store.GetEvidenceFile(ctx, file.ID)
	require.True(t, errors.As(err, &nf))

	err = store.DeleteEvidenceFile(ctx, file.ID, false)
	require.True(t, errors.As(err, &nf))
}

func testListEvidenceFiles(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)
	// Far in the past so rows from other checks never interfere.
	base := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	older := &model.EvidenceFile{Filename: "older.ufdr", StoragePath: "older", UploadedAt: base}
	newer := &model.EvidenceFile{Filename: "newer.ufdr", StoragePath: "newer", UploadedAt: base.Add(time.Hour)}
	gone := &model.EvidenceFile{Filename: "gone.ufdr", StoragePath: "gone", UploadedAt: base.Add(2 * time.Hour)}
	for _, f := range []*model.EvidenceFile{older, newer, gone} {
		require.NoError(t, store.CreateEvidenceFile(ctx, f))
	}
	require.NoError(t, store.DeleteEvidenceFile(ctx, gone.ID, false))

	files, err := store.ListEvidenceFiles(ctx, base.Add(3*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, newer.ID, files[0].ID)
	assert.Equal(t, older.ID, files[1].ID)

	files, err = store.ListEvidenceFiles(ctx, base.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, older.ID, files[0].ID)
}

func testHardDelete(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)
	file := createFile(t, ctx, store, nil)
	art := model.Artifact{EvidenceFileID: file.ID, Type: model.ArtifactMessage, ExtractedText: text("hello")}
	require.NoError(t, store.CreateArtifacts(ctx, []model.Artifact{art}))
	session := &model.ChatSession{ID: uuid.New(), EvidenceFileID: &file.ID, Messages: []model.Message{}}
	require.NoError(t, store.UpsertChatSession(ctx, session))

	require.NoError(t, store.DeleteEvidenceFile(ctx, file.ID, true))

	listed, err := store.ListArtifacts(ctx, file.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, listed)
	got, err := store.GetChatSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testCaseAssignments(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)
	caseID := uuid.New()

	ok, err := store.IsAssigned(ctx, caseID, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.AssignCase(ctx, caseID, "alice"))
	require.NoError(t, store.AssignCase(ctx, caseID, "alice"))

	ok, err = store.IsAssigned(ctx, caseID, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.IsAssigned(ctx, caseID, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testArtifactSearch(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)
	file := createFile(t, ctx, store, nil)
	other := createFile(t, ctx, store, nil)
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	artifacts := []model.Artifact{
		{ID: uuid.New(), EvidenceFileID: file.ID, Type: model.ArtifactMessage, ExtractedText: text("Ravi Sharma travelled to Mumbai"), CreatedAt: base, Raw: datatypes.JSON(`{"from":"+91"}`)},
		{ID: uuid.New(), EvidenceFileID: file.ID, Type: model.ArtifactCall, ExtractedText: text("Call with Priya lasted 100% of the night"), CreatedAt: base.Add(time.Minute)},
		{ID: uuid.New(), EvidenceFileID: file.ID, Type: model.ArtifactImage, CreatedAt: base.Add(2 * time.Minute)},
		{ID: uuid.New(), EvidenceFileID: other.ID, Type: model.ArtifactMessage, ExtractedText: text("Ravi elsewhere"), CreatedAt: base},
	}
	require.NoError(t, store.CreateArtifacts(ctx, artifacts))

	found, err := store.SearchArtifactsByText(ctx, file.ID, []string{"MUMBAI", "priya"}, 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, artifacts[1].ID, found[0].ID, "most recent first")

	found, err = store.SearchArtifactsByText(ctx, file.ID, []string{"ravi"}, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.JSONEq(t, `{"from":"+91"}`, string(found[0].Raw))

	// Wildcards in terms match literally.
	found, err = store.SearchArtifactsByText(ctx, file.ID, []string{"%"}, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, artifacts[1].ID, found[0].ID)

	listed, err := store.ListArtifacts(ctx, file.ID, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, artifacts[2].ID, listed[0].ID)

	byID, err := store.GetArtifactsByIDs(ctx, []uuid.UUID{artifacts[0].ID, uuid.New(), artifacts[3].ID})
	require.NoError(t, err)
	assert.Len(t, byID, 2)
}

func testPendingEmbedding(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)
	file := createFile(t, ctx, store, nil)
	withText := model.Artifact{ID: uuid.New(), EvidenceFileID: file.ID, Type: model.ArtifactMessage, ExtractedText: text("needs a vector")}
	noText := model.Artifact{ID: uuid.New(), EvidenceFileID: file.ID, Type: model.ArtifactImage}
	require.NoError(t, store.CreateArtifacts(ctx, []model.Artifact{withText, noText}))

	pending, err := store.FindArtifactsPendingEmbedding(ctx, 1000)
	require.NoError(t, err)
	assert.Contains(t, ids(pending), withText.ID)
	assert.NotContains(t, ids(pending), noText.ID)

	require.NoError(t, store.MarkArtifactsEmbedded(ctx, []uuid.UUID{withText.ID}, time.Now().UTC()))
	pending, err = store.FindArtifactsPendingEmbedding(ctx, 1000)
	require.NoError(t, err)
	assert.NotContains(t, ids(pending), withText.ID)
}

func ids(artifacts []model.Artifact) []uuid.UUID {
	out := make([]uuid.UUID, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.ID
	}
	return out
}

func testChatSessionUpsert(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)
	file := createFile(t, ctx, store, nil)
	user := "alice"
	ts := time.Now().UTC().Truncate(time.Millisecond)
	session := &model.ChatSession{
		ID:             uuid.New(),
		EvidenceFileID: &file.ID,
		UserID:         &user,
		Messages:       []model.Message{{Role: model.RoleUser, Text: "Who is Ravi Sharma?", Timestamp: ts}},
	}

	got, err := store.GetChatSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.UpsertChatSession(ctx, session))
	session.Messages = append(session.Messages, model.Message{Role: model.RoleAssistant, Text: "A contact.", Timestamp: ts})
	session.UpdatedAt = ts.Add(time.Second)
	require.NoError(t, store.UpsertChatSession(ctx, session))

	got, err = store.GetChatSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, model.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "A contact.", got.Messages[1].Text)
	assert.Equal(t, "alice", *got.UserID)
}

func testCases(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)
	base := time.Now().UTC().Truncate(time.Millisecond)
	first := &model.Case{Name: "Harbour seizure", CreatedBy: "root", CreatedAt: base}
	second := &model.Case{Name: "Airport stop", Description: text("two handsets"), CreatedBy: "root", CreatedAt: base.Add(time.Minute)}
	require.NoError(t, store.CreateCase(ctx, first))
	require.NoError(t, store.CreateCase(ctx, second))
	require.NotEqual(t, uuid.Nil, first.ID)

	listed, err := store.ListCases(ctx, []uuid.UUID{first.ID, second.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.ID, listed[0].ID, "most recent first")
	assert.Equal(t, "two handsets", *listed[0].Description)

	listed, err = store.ListCases(ctx, []uuid.UUID{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	all, err := store.ListCases(ctx, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(all), 2)

	user := "investigator-" + uuid.NewString()
	require.NoError(t, store.AssignCase(ctx, first.ID, user))
	require.NoError(t, store.AssignCase(ctx, second.ID, user))
	assigned, err := store.AssignedCaseIDs(ctx, user)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, assigned)

	assigned, err = store.AssignedCaseIDs(ctx, "nobody-"+uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, assigned)
}

func testSummarize(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)
	caseID := uuid.New()
	kept := createFile(t, ctx, store, &caseID)
	latest := createFile(t, ctx, store, &caseID)
	gone := createFile(t, ctx, store, &caseID)
	createFile(t, ctx, store, nil)
	arts := []model.Artifact{
		{EvidenceFileID: kept.ID, CaseID: &caseID, Type: model.ArtifactMessage, ExtractedText: text("one")},
		{EvidenceFileID: latest.ID, CaseID: &caseID, Type: model.ArtifactCall},
		{EvidenceFileID: gone.ID, CaseID: &caseID, Type: model.ArtifactMessage, ExtractedText: text("deleted")},
	}
	require.NoError(t, store.CreateArtifacts(ctx, arts))
	require.NoError(t, store.DeleteEvidenceFile(ctx, gone.ID, false))

	sum, err := store.Summarize(ctx, []uuid.UUID{caseID}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Cases)
	assert.Equal(t, int64(2), sum.EvidenceFiles)
	assert.Equal(t, int64(2), sum.Artifacts)
	require.Len(t, sum.RecentUploads, 1)

	sum, err = store.Summarize(ctx, []uuid.UUID{}, 15)
	require.NoError(t, err)
	assert.Zero(t, sum.EvidenceFiles)
	assert.Empty(t, sum.RecentUploads)

	sum, err = store.Summarize(ctx, nil, 15)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sum.EvidenceFiles, int64(3))
	assert.GreaterOrEqual(t, sum.Artifacts, int64(2))
}

func testAuditLogs(t *testing.T, newStore Factory) {
	store, ctx := newStore(t)
	// Far in the future so these are the newest rows in a shared store.
	base := time.Date(2999, 1, 1, 0, 0, 0, 0, time.UTC)
	user := "alice"
	older := &model.AuditLog{Method: "GET", Path: "/v1/evidence", StatusCode: 200, UserID: &user, IPAddress: "10.0.0.1", UserAgent: "curl/8", Timestamp: base}
	newer := &model.AuditLog{Method: "POST", Path: "/v1/evidence/upload", StatusCode: 401, IPAddress: "10.0.0.2", Timestamp: base.Add(time.Second)}
	require.NoError(t, store.CreateAuditLog(ctx, older))
	require.NoError(t, store.CreateAuditLog(ctx, newer))
	require.NotEqual(t, uuid.Nil, older.ID)

	logs, err := store.ListAuditLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, newer.ID, logs[0].ID)
	assert.Nil(t, logs[0].UserID)
	assert.Equal(t, 401, logs[0].StatusCode)
	assert.Equal(t, "alice", *logs[1].UserID)
	assert.Equal(t, "curl/8", logs[1].UserAgent)
}
