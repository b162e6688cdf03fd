// Package warehouse backs the data-query capability with a SQL
// warehouse reachable through the MySQL wire protocol.
package warehouse

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/capability"
	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
)

// Config 描述数据仓库适配器的连接参数。
type Config struct {
	DSN          string
	MaxRows      int
	QueryTimeout time.Duration
}

// Adapter 将 query_data 动作转换为对数据仓库的只读查询。
type Adapter struct {
	db      *sql.DB
	maxRows int
	timeout time.Duration
}

// New 创建数据仓库适配器并校验连通性。
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "数据仓库 DSN 不能为空")
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接数据仓库失败")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到数据仓库")
	}

	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 100
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{db: db, maxRows: maxRows, timeout: timeout}, nil
}

// Invoke 实现 capability.Adapter。
// 查询语句取自参数 sql，未提供时退化为连通性探测。
func (a *Adapter) Invoke(ctx context.Context, action string, parameters map[string]any) (*capability.Result, error) {
	query, _ := parameters["sql"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		query = "SELECT 1"
	}
	// 只读适配器，拒绝任何写语句。
	if !isReadOnly(query) {
		return &capability.Result{
			Success: false,
			Error:   "only read-only statements are allowed",
		}, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rows, err := a.db.QueryContext(queryCtx, query)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAdapterError, err, "数据仓库查询失败")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAdapterError, err, "读取结果列失败")
	}

	var records []map[string]any
	for rows.Next() {
		if len(records) >= a.maxRows {
			break
		}
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeAdapterError, err, "解析查询结果失败")
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				record[column] = string(raw)
			} else {
				record[column] = values[i]
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAdapterError, err, "遍历查询结果失败")
	}

	return &capability.Result{
		Success: true,
		Output: map[string]any{
			"action":    action,
			"row_count": len(records),
			"rows":      records,
		},
	}, nil
}

// Close 关闭底层连接池。
func (a *Adapter) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func isReadOnly(query string) bool {
	head := strings.ToUpper(query)
	for _, prefix := range []string{"SELECT", "SHOW", "DESCRIBE", "EXPLAIN", "WITH"} {
		if strings.HasPrefix(head, prefix) {
			return true
		}
	}
	return false
}

var _ capability.Adapter = (*Adapter)(nil)
