// Package mssql wraps the SQL Server engine operations the workflows
// issue: backup-to-URL, backup manifest introspection, restore with file
// relocation, and the database size query used by the capacity check.
package mssql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/denisenkom/go-mssqldb"
)

// Client defines the engine operations used by the workflows.
type Client interface {
	// Connect establishes the connection. Call before any other operation.
	Connect(ctx context.Context) error
	// Close releases the connection.
	Close() error
	// BackupToURL issues a full, compressed, copy-only backup of database
	// directly to a blob URL, overwriting any existing object of that name.
	BackupToURL(ctx context.Context, database, blobURL string) error
	// FileList reads the internal file manifest of a backup file, in
	// manifest order.
	FileList(ctx context.Context, bakPath string) ([]BackupFile, error)
	// RestoreWithMove restores a backup file into targetDB, relocating
	// every file per the plan and replacing any existing database.
	RestoreWithMove(ctx context.Context, targetDB, bakPath string, moves []Relocation, timeout time.Duration) error
	// DatabaseSizeMB reports the on-disk size of a database in megabytes.
	DatabaseSizeMB(ctx context.Context, database string) (float64, error)
}

// ClientOptions holds the connection parameters for SQL authentication.
type ClientOptions struct {
	Server   string
	Port     int
	User     string
	Password string
	// Database is the initial database, usually master.
	Database string
	// Timeout bounds connection establishment.
	Timeout time.Duration
}

var _ Client = (*client)(nil)

type client struct {
	db        *sqlx.DB
	opts      ClientOptions
	connector driver.Connector
}

// NewClient creates a client for SQL authentication. The connection is
// established by Connect, not here.
func NewClient(opts ClientOptions) (Client, error) {
	if opts.Server == "" {
		return nil, fmt.Errorf("mssql: server is required")
	}
	if opts.Port == 0 {
		opts.Port = 1433
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return nil, fmt.Errorf("mssql: invalid port %d", opts.Port)
	}
	if opts.Database == "" {
		opts.Database = "master"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &client{opts: opts}, nil
}

func (c *client) Connect(ctx context.Context) error {
	if c.connector != nil {
		db := sql.OpenDB(c.connector)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return fmt.Errorf("mssql: ping failed: %w", err)
		}
		c.db = sqlx.NewDb(db, "sqlserver")
		return nil
	}

	// Connection string parameters are escaped so credentials containing
	// ';' or '=' cannot break out of their slot.
	connString := fmt.Sprintf(
		"server=%s;user id=%s;password=%s;port=%d;database=%s;encrypt=true;connection timeout=%d",
		url.QueryEscape(c.opts.Server),
		url.QueryEscape(c.opts.User),
		url.QueryEscape(c.opts.Password),
		c.opts.Port,
		url.QueryEscape(c.opts.Database),
		int(c.opts.Timeout.Seconds()),
	)

	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return fmt.Errorf("mssql: open failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		if ctx.Err() != nil {
			return fmt.Errorf("mssql: context cancelled during ping: %w", ctx.Err())
		}
		return fmt.Errorf("mssql: ping failed: %w", err)
	}

	c.db = sqlx.NewDb(db, "sqlserver")
	return nil
}

func (c *client) Close() error {
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteIdentifier bracket-quotes a database name for embedding in a
// statement that cannot take it as a parameter. The pattern rejects
// anything outside the naming convention, brackets and quotes included,
// so the quoted form needs no escaping.
func quoteIdentifier(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("mssql: invalid database identifier %q", name)
	}
	return "[" + name + "]", nil
}

func (c *client) BackupToURL(ctx context.Context, database, blobURL string) error {
	if c.db == nil {
		return fmt.Errorf("mssql: connection not established")
	}
	ident, err := quoteIdentifier(database)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"BACKUP DATABASE %s TO URL = @url WITH FORMAT, INIT, COMPRESSION, COPY_ONLY, STATS = 10",
		ident,
	)

	// No retry: any engine failure propagates to the caller as-is.
	if _, err := c.db.ExecContext(ctx, query, sql.Named("url", blobURL)); err != nil {
		return fmt.Errorf("mssql: backup of %s failed: %w", database, err)
	}
	return nil
}

// BackupFile is one entry of a backup's internal file manifest.
type BackupFile struct {
	LogicalName string
	// Type is the engine's one-letter file type code (D, L, F, S, X).
	Type string
}

func (c *client) FileList(ctx context.Context, bakPath string) ([]BackupFile, error) {
	if c.db == nil {
		return nil, fmt.Errorf("mssql: connection not established")
	}

	// The FILELISTONLY column set varies across engine versions, so rows
	// are scanned into maps and only the two consumed columns are read.
	rows, err := c.db.QueryxContext(ctx,
		"RESTORE FILELISTONLY FROM DISK = @path",
		sql.Named("path", bakPath),
	)
	if err != nil {
		return nil, fmt.Errorf("mssql: reading file manifest of %s failed: %w", bakPath, err)
	}
	defer rows.Close()

	var files []BackupFile
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("mssql: scanning file manifest row failed: %w", err)
		}
		files = append(files, BackupFile{
			LogicalName: stringColumn(row, "LogicalName"),
			Type:        stringColumn(row, "Type"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mssql: reading file manifest failed: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("mssql: backup %s contains no files", bakPath)
	}
	return files, nil
}

func stringColumn(row map[string]interface{}, name string) string {
	switch v := row[name].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func (c *client) RestoreWithMove(ctx context.Context, targetDB, bakPath string, moves []Relocation, timeout time.Duration) error {
	if c.db == nil {
		return fmt.Errorf("mssql: connection not established")
	}
	ident, err := quoteIdentifier(targetDB)
	if err != nil {
		return err
	}
	if len(moves) == 0 {
		return fmt.Errorf("mssql: restore of %s requires a relocation plan", targetDB)
	}

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	query := fmt.Sprintf(
		"RESTORE DATABASE %s FROM DISK = @path WITH %s, REPLACE, STATS = 10",
		ident,
		MoveClauses(moves),
	)

	if _, err := c.db.ExecContext(execCtx, query, sql.Named("path", bakPath)); err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("mssql: restore of %s timed out after %v", targetDB, timeout)
		}
		return fmt.Errorf("mssql: restore of %s failed: %w", targetDB, err)
	}
	return nil
}

func (c *client) DatabaseSizeMB(ctx context.Context, database string) (float64, error) {
	if c.db == nil {
		return 0, fmt.Errorf("mssql: connection not established")
	}

	var sizeMB sql.NullFloat64
	err := c.db.QueryRowContext(ctx,
		"SELECT CAST(SUM(size) * 8.0 / 1024 AS float) FROM sys.master_files WHERE database_id = DB_ID(@db)",
		sql.Named("db", database),
	).Scan(&sizeMB)
	if err != nil {
		return 0, fmt.Errorf("mssql: size query for %s failed: %w", database, err)
	}
	if !sizeMB.Valid {
		return 0, fmt.Errorf("mssql: database %s not found", database)
	}
	return sizeMB.Float64, nil
}
