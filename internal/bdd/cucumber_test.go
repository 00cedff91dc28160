package bdd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chirino/ufdr-service/internal/cmd/serve"
	"github.com/chirino/ufdr-service/internal/config"
	"github.com/chirino/ufdr-service/internal/plugin/store/sqlite"
	"github.com/chirino/ufdr-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
	"github.com/stretchr/testify/require"
)

// testConfig returns settings shared by every backend run. Answers come from
// the mock model so scenarios can script replies.
func testConfig(t *testing.T, mock *MockAnswerModel) config.Config {
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.AdminUsers = "root"
	cfg.AuditorUsers = "auditor"
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false
	cfg.TempDir = t.TempDir()
	cfg.BlobType = "fs"
	cfg.BlobDir = t.TempDir()
	cfg.MaxUploadSize = 1 << 20
	cfg.CacheType = "local"
	cfg.EmbedType = "local"
	cfg.VectorType = ""
	cfg.VectorIndexerInterval = 200 * time.Millisecond
	cfg.AnswerType = "openai"
	cfg.OpenAIAPIKey = "bdd"
	cfg.OpenAIBaseURL = mock.Server.URL + "/v1"
	cfg.RetentionDays = 0
	return cfg
}

// runFeatures starts the server with cfg and runs every feature file against it.
func runFeatures(t *testing.T, cfg *config.Config, db cucumber.TestDB, mock *MockAnswerModel) {
	ctx := config.WithContext(context.Background(), cfg)
	srv, err := serve.StartServer(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	featureFiles, err := filepath.Glob(filepath.Join("features", "*.feature"))
	require.NoError(t, err)
	require.NotEmpty(t, featureFiles)

	opts := cucumber.DefaultOptions()
	for _, arg := range os.Args[1:] {
		if arg == "-test.v=true" || arg == "-test.v" || arg == "-v" {
			opts.Format = "pretty"
		}
	}

	for _, featurePath := range featureFiles {
		name := strings.TrimSuffix(filepath.Base(featurePath), ".feature")
		t.Run(name, func(t *testing.T) {
			o := opts
			o.TestingT = t
			o.Paths = []string{featurePath}
			defer cucumber.ApplyReportOptions(&o, t.Name())()

			suite := cucumber.NewTestSuite()
			suite.APIURL = fmt.Sprintf("http://localhost:%d", srv.Running.Port)
			suite.TestingT = t
			suite.Context = cfg
			suite.DB = db
			suite.Extra["answerModel"] = mock

			status := godog.TestSuite{
				Name:                name,
				Options:             &o,
				ScenarioInitializer: suite.InitializeScenario,
			}.Run()
			if status != 0 {
				t.Fail()
			}
		})
	}
}

func TestFeatures(t *testing.T) {
	mock := NewMockAnswerModel(t)
	cfg := testConfig(t, mock)
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = "file:" + filepath.Join(t.TempDir(), "ufdr.db") + "?_busy_timeout=5000"

	db, err := sqlite.Open(cfg.DBURL)
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))

	runFeatures(t, &cfg, &SQLTestDB{DB: db}, mock)
}
