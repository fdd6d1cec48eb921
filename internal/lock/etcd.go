package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const defaultEtcdPrefix = "/store-core/locks/"

// EtcdStore takes locks as etcd mutexes, one session per acquisition. The
// session lease TTL bounds how long a crashed holder keeps a key.
type EtcdStore struct {
	client *clientv3.Client
	prefix string
	ttl    int
}

func NewEtcdClient(endpoints []string, timeout time.Duration) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return cli, nil
}

func NewEtcdStore(client *clientv3.Client, prefix string, ttl time.Duration) *EtcdStore {
	if prefix == "" {
		prefix = defaultEtcdPrefix
	}
	seconds := int(ttl.Seconds())
	if seconds < 1 {
		seconds = 10
	}
	return &EtcdStore{client: client, prefix: prefix, ttl: seconds}
}

func (s *EtcdStore) TryAcquire(ctx context.Context, key string, wait time.Duration) (Handle, error) {
	session, err := concurrency.NewSession(s.client, concurrency.WithTTL(s.ttl), concurrency.WithContext(sessionContext(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create etcd session for lock %s: %w", key, err)
	}

	mutex := concurrency.NewMutex(session, s.prefix+key)

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if err := mutex.Lock(waitCtx); err != nil {
		_ = session.Close()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("acquire etcd lock %s: %w", key, err)
	}

	return &etcdHandle{mutex: mutex, session: session, key: key}, nil
}

type etcdHandle struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session
	key     string
	once    sync.Once
	err     error
}

func (h *etcdHandle) Release(ctx context.Context) error {
	h.once.Do(func() {
		// closing the session revokes the lease even if unlock fails
		defer h.session.Close()

		if err := h.mutex.Unlock(ctx); err != nil {
			h.err = fmt.Errorf("release etcd lock %s: %w", h.key, err)
		}
	})
	return h.err
}

// sessionContext keeps the lease alive after the caller's context ends. The
// session lives until Release closes it or a failed wait abandons it.
func sessionContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
