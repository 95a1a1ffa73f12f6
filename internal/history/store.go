package history

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
)

var (
	// ErrUnknownAccount 账户不在 [0, A) 范围内
	ErrUnknownAccount = errors.New("unknown account")
	// ErrInvalidSize 账户数或分片数非法
	ErrInvalidSize = errors.New("accounts and shards must be > 0")
)

// Entry 单个账户的交易计数
type Entry struct {
	AccountID int   `json:"account_id"`
	Count     int64 `json:"count"`
}

type account struct {
	count  int64
	recent []time.Time // 仅 window > 0 时使用
}

// shard 一把互斥锁保护的一组账户
type shard struct {
	mu       sync.Mutex
	holders  atomic.Int32 // 临界区内的持有者数量，只能是 0 或 1
	accounts map[int]*account
}

// Store 账户交易历史
// 读取-递增在同一个临界区内完成；shards=1 即全局单锁。
type Store struct {
	size       int
	window     time.Duration
	shards     []*shard
	violations atomic.Int64
}

// New 为 [0, accounts) 中的每个账户预先建立记录
func New(accounts, shards int, window time.Duration) (*Store, error) {
	if accounts <= 0 || shards <= 0 {
		return nil, fmt.Errorf("%w: accounts=%d shards=%d", ErrInvalidSize, accounts, shards)
	}
	if window < 0 {
		return nil, fmt.Errorf("window must be >= 0, got %s", window)
	}
	s := &Store{
		size:   accounts,
		window: window,
		shards: make([]*shard, shards),
	}
	for i := range s.shards {
		s.shards[i] = &shard{accounts: make(map[int]*account)}
	}
	for id := 0; id < accounts; id++ {
		s.shardOf(id).accounts[id] = &account{}
	}
	return s, nil
}

func (s *Store) shardOf(id int) *shard {
	return s.shards[id%len(s.shards)]
}

func (s *Store) check(id int) error {
	if id < 0 || id >= s.size {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrUnknownAccount, id, s.size)
	}
	return nil
}

// Bump 记录一笔交易并返回此前的计数
// window > 0 时返回 at 之前 window 内的交易数，否则返回累计数。
func (s *Store) Bump(id int, at time.Time) (int64, error) {
	if err := s.check(id); err != nil {
		return 0, err
	}
	sh := s.shardOf(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.holders.Inc() != 1 {
		s.violations.Inc()
	}
	defer sh.holders.Dec()

	acct := sh.accounts[id]
	prev := acct.count
	acct.count++

	if s.window > 0 {
		kept := acct.recent[:0]
		for _, t := range acct.recent {
			if at.Sub(t) <= s.window {
				kept = append(kept, t)
			}
		}
		prev = int64(len(kept))
		acct.recent = append(kept, at)
	}
	return prev, nil
}

// Count 账户累计交易数
func (s *Store) Count(id int) (int64, error) {
	if err := s.check(id); err != nil {
		return 0, err
	}
	sh := s.shardOf(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.accounts[id].count, nil
}

// Snapshot 按账户 ID 排序的计数快照
func (s *Store) Snapshot() []Entry {
	out := make([]Entry, 0, s.size)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, acct := range sh.accounts {
			out = append(out, Entry{AccountID: id, Count: acct.count})
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// Total 所有账户计数之和
func (s *Store) Total() int64 {
	var total int64
	for _, e := range s.Snapshot() {
		total += e.Count
	}
	return total
}

// Reset 清空所有计数
func (s *Store) Reset() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, acct := range sh.accounts {
			acct.count = 0
			acct.recent = nil
		}
		sh.mu.Unlock()
	}
}

// Accounts 账户空间大小
func (s *Store) Accounts() int {
	return s.size
}

// LockStates 每个分片临界区内的持有者数量
func (s *Store) LockStates() []int32 {
	out := make([]int32, len(s.shards))
	for i, sh := range s.shards {
		out[i] = sh.holders.Load()
	}
	return out
}

// Violations 观察到的互斥冲突次数，正确实现下恒为 0
func (s *Store) Violations() int64 {
	return s.violations.Load()
}
