package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remlyo/remlyo-api/internal/app/bootstrap"
	"github.com/remlyo/remlyo-api/internal/application"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yaml")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPlansPrintsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_URL", "sqlite://unused.db")

	out, err := run(t, "plans")
	require.NoError(t, err)
	assert.Contains(t, out, "basic_monthly")
	assert.Contains(t, out, "9.99 usd")
	assert.Contains(t, out, "199.00 usd")
}

func TestMigrateAndSetRole(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DB_URL", "sqlite://"+filepath.Join(dir, "ctl.db"))
	t.Setenv("BCRYPT_ROUNDS", "4")

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	ctx := context.Background()
	rt, err := bootstrap.NewRuntime(ctx, filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	_, err = rt.Service().Register(ctx, application.RegisterRequest{
		Email:           "ops@example.com",
		Password:        "Sup3rSecret1",
		ConfirmPassword: "Sup3rSecret1",
		DisplayName:     "Ops",
	}, "")
	require.NoError(t, err)
	rt.Close()

	out, err = run(t, "set-role", "--email", "ops@example.com", "--role", "moderator")
	require.NoError(t, err)
	assert.Contains(t, out, "ops@example.com is now moderator")

	_, err = run(t, "set-role", "--email", "ops@example.com", "--role", "overlord")
	require.Error(t, err)

	out, err = run(t, "expire-subscriptions")
	require.NoError(t, err)
	assert.Contains(t, out, "0 subscriptions updated")
}
