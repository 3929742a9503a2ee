/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package container

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rulego/hive/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer(t *testing.T) {
	c := New()
	assert.False(t, c.Has("a"))
	_, err := c.Get("a")
	assert.True(t, errors.Is(err, ErrServiceNotFound))

	c.Set("a", 1)
	v, err := c.Get("a")
	require.Nil(t, err)
	assert.Equal(t, 1, v)

	c.SetDefault("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 1, v)

	builds := 0
	c.SetFactory("b", func(c *Container) (interface{}, error) {
		builds++
		a, err := c.Get("a")
		if err != nil {
			return nil, err
		}
		return a.(int) + 10, nil
	})
	assert.True(t, c.Has("b"))
	for i := 0; i < 2; i++ {
		v, err = c.Get("b")
		require.Nil(t, err)
		assert.Equal(t, 11, v)
	}
	assert.Equal(t, 1, builds)
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}

func TestFactoryFailures(t *testing.T) {
	c := New()
	c.SetFactory("broken", func(c *Container) (interface{}, error) {
		return nil, errors.New("broken")
	})
	_, err := c.Get("broken")
	assert.NotNil(t, err)
	// a failed build can be retried
	assert.True(t, c.Has("broken"))

	c.SetFactory("self", func(c *Container) (interface{}, error) {
		return c.Get("self")
	})
	_, err = c.Get("self")
	assert.NotNil(t, err)

	c.SetFactory("x", func(c *Container) (interface{}, error) {
		return c.Get("y")
	})
	c.SetFactory("y", func(c *Container) (interface{}, error) {
		return c.Get("x")
	})
	_, err = c.Get("x")
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "service x depends on itself")
}

func TestConcurrentGet(t *testing.T) {
	c := New()
	var builds int32
	c.SetFactory("router", func(c *Container) (interface{}, error) {
		atomic.AddInt32(&builds, 1)
		time.Sleep(20 * time.Millisecond)
		return "router", nil
	})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get("router")
			if err == nil && v != "router" {
				err = fmt.Errorf("unexpected value %v", v)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.Nil(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
}

func TestConcurrentGetAfterFailure(t *testing.T) {
	c := New()
	var builds int32
	c.SetFactory("flaky", func(c *Container) (interface{}, error) {
		if atomic.AddInt32(&builds, 1) == 1 {
			time.Sleep(20 * time.Millisecond)
			return nil, errors.New("first build fails")
		}
		return "ok", nil
	})

	var wg sync.WaitGroup
	var failed int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get("flaky"); err != nil {
				atomic.AddInt32(&failed, 1)
			}
		}()
	}
	wg.Wait()
	// only the caller that ran the failing build sees its error
	assert.Equal(t, int32(1), atomic.LoadInt32(&failed))
	v, err := c.Get("flaky")
	require.Nil(t, err)
	assert.Equal(t, "ok", v)
}

func TestCallableResolver(t *testing.T) {
	c := New()
	r := NewCallableResolver(c)
	req, err := types.NewRequest("GET", "/hello?name=hive", nil)
	require.Nil(t, err)

	var handler types.Handler = func(req *types.Request, res *types.Response) (*types.Response, error) {
		_, _ = res.WriteString("handler")
		return res, nil
	}
	short := func(req *types.Request, res *types.Response) *types.Response {
		_, _ = res.WriteString("short")
		return res
	}
	std := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = fmt.Fprintf(w, "std %s", r.URL.Query().Get("name"))
	}
	c.Set("hello", std)
	c.Set("loop", "hello")

	for _, tc := range []struct {
		ref  interface{}
		want string
	}{
		{handler, "handler"},
		{short, "short"},
		{std, "std hive"},
		{"hello", "std hive"},
	} {
		h, err := r.Resolve(tc.ref)
		require.Nil(t, err, tc.want)
		res, err := h(req, types.NewResponse())
		require.Nil(t, err)
		assert.Equal(t, tc.want, string(res.Body()))
	}

	for _, ref := range []interface{}{nil, 42, "missing", "loop"} {
		_, err := r.Resolve(ref)
		assert.NotNil(t, err, ref)
	}
	_, err = NewCallableResolver(nil).Resolve("hello")
	assert.NotNil(t, err)
}

func TestFromHTTPStatus(t *testing.T) {
	req, err := types.NewRequest("POST", "/echo", []byte("payload"))
	require.Nil(t, err)
	req.Header.Set("X-Test", "1")
	h := FromHTTP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.Header.Get("X-Test"))
		assert.Equal(t, "/echo", r.RequestURI)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusCreated)
		buf := make([]byte, 16)
		n, _ := r.Body.Read(buf)
		_, _ = w.Write(buf[:n])
	}))
	res, err := h(req, types.NewResponse())
	require.Nil(t, err)
	assert.Equal(t, http.StatusCreated, res.Status())
	assert.Equal(t, "text/plain", res.Header().Get("Content-Type"))
	assert.Equal(t, "payload", string(res.Body()))
}
