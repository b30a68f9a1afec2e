package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig("postgres://u:p@localhost:5432/typereel")

	if cfg.MaxConns != 4 {
		t.Errorf("MaxConns = %d, want 4", cfg.MaxConns)
	}
	if cfg.StatementTimeout != 5*time.Second {
		t.Errorf("StatementTimeout = %v, want 5s", cfg.StatementTimeout)
	}
	if !cfg.EnsureSchema {
		t.Error("EnsureSchema = false, want true")
	}
}

func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         ClientConfig
		wantMax     int32
		wantApp     string
		wantTimeout string
		wantErr     bool
	}{
		{
			name:        "ledger defaults",
			cfg:         DefaultClientConfig("postgres://u:p@localhost:5432/typereel"),
			wantMax:     4,
			wantApp:     "typereel-ledger",
			wantTimeout: "5000",
		},
		{
			name:        "DSN application name wins",
			cfg:         ClientConfig{DSN: "postgres://u:p@localhost:5432/typereel?application_name=ops&pool_max_conns=9"},
			wantMax:     9,
			wantApp:     "ops",
			wantTimeout: "",
		},
		{
			name:    "malformed DSN",
			cfg:     ClientConfig{DSN: "postgres://u:p@localhost:notaport/typereel"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := poolConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("poolConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if pc.MaxConns != tt.wantMax {
				t.Errorf("MaxConns = %d, want %d", pc.MaxConns, tt.wantMax)
			}
			params := pc.ConnConfig.RuntimeParams
			if params["application_name"] != tt.wantApp {
				t.Errorf("application_name = %q, want %q", params["application_name"], tt.wantApp)
			}
			if params["statement_timeout"] != tt.wantTimeout {
				t.Errorf("statement_timeout = %q, want %q", params["statement_timeout"], tt.wantTimeout)
			}
		})
	}
}

func TestEnsureSchema(t *testing.T) {
	if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS render_jobs") {
		t.Fatalf("embedded schema does not create render_jobs:\n%s", schema)
	}

	tests := []struct {
		name    string
		execErr error
		wantErr bool
	}{
		{name: "applies schema"},
		{name: "exec error", execErr: errors.New("permission denied"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer mock.Close()

			exp := mock.ExpectExec("CREATE TABLE IF NOT EXISTS render_jobs")
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
			}

			err = ensureSchema(context.Background(), mock)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ensureSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, tt.execErr) {
				t.Errorf("error should wrap the exec error: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}
