package knowledge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
)

// maxCachedRecords 限制常驻内存的历史记录数量。
const maxCachedRecords = 512

// MemoryStore 使用本地 JSONL 文件保存执行历史，便于单机部署与测试。
type MemoryStore struct {
	mu       sync.RWMutex
	dataFile string
	records  []Record
}

// NewMemoryStore 创建基于文件的知识库存储。
func NewMemoryStore(dataDir string) (*MemoryStore, error) {
	if strings.TrimSpace(dataDir) == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建数据目录失败")
	}
	path := filepath.Join(dataDir, "runs.log")
	store := &MemoryStore{dataFile: path}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// Append 以追加写的方式记录一次管道执行。
func (m *MemoryStore) Append(_ context.Context, record Record) error {
	if strings.TrimSpace(record.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidInput, "记录 ID 不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开执行历史文件失败")
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化执行记录失败")
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入执行历史失败")
	}

	m.records = append([]Record{record}, m.records...)
	if len(m.records) > maxCachedRecords {
		m.records = m.records[:maxCachedRecords]
	}
	return nil
}

// ListLatest 返回最近的执行记录，按时间倒序排列。
func (m *MemoryStore) ListLatest(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]Record, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// Close 对文件存储无需额外操作。
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取执行历史失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []Record
	for scanner.Scan() {
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			// 跳过损坏的行，不因单条记录中断恢复。
			continue
		}
		restored = append([]Record{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("解析执行历史 %s 失败", m.dataFile))
	}

	if len(restored) > maxCachedRecords {
		restored = restored[:maxCachedRecords]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
