package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
)

// numShards spreads account locks across independent mutexes so unrelated
// accounts never contend. Two mutations on one account always hash to the
// same shard and therefore serialise.
const numShards = 128

// defaultTxTimeout bounds how long a mutation may hold an account lock.
const defaultTxTimeout = 5 * time.Second

// shardedTx is the in-process StoreTx: a mutex per shard, selected by the
// account ID. It provides the single-writer-per-account discipline without
// a database; cross-process deployments must use the SQL implementation.
type shardedTx struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func newShardedTx() *shardedTx {
	return &shardedTx{timeout: defaultTxTimeout}
}

func (t *shardedTx) RunInTx(ctx context.Context, accountID id.AccountID, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := shardFor(accountID)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// The lock may have been waited on; a caller that gave up meanwhile
	// must not run its mutation.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}

func shardFor(accountID id.AccountID) int {
	h := fnv.New32a()
	h.Write([]byte(accountID.String()))
	return int(h.Sum32() % numShards)
}
