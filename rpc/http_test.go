package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"jobboard/core"
	"jobboard/crypto"
	"jobboard/native/jobs"
	"jobboard/storage"
)

const testToken = "unit-test-token"

var (
	employerAddr   = testAddress(0x11)
	freelancerAddr = testAddress(0x22)
	authorityAddr  = testAddress(0x33)
)

func testAddress(b byte) string {
	raw := [20]byte{}
	for i := range raw {
		raw[i] = b
	}
	return crypto.NewAddress(crypto.JobPrefix, raw[:]).String()
}

type testEnv struct {
	t      *testing.T
	node   *core.Node
	server *Server
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	var authority [20]byte
	addr, err := crypto.DecodeAddress(authorityAddr)
	require.NoError(t, err)
	copy(authority[:], addr.Bytes())

	node := core.NewNode(storage.NewMemDB(), core.Config{
		Policy:        jobs.DefaultPolicy(),
		MintAuthority: authority,
	})
	server := NewServer(node, nil)
	server.SetAuthToken(testToken)
	server.SetMutationLimit(rate.Inf, 0)
	return &testEnv{t: t, node: node, server: server, router: server.Router()}
}

type rpcResult struct {
	status int
	result json.RawMessage
	rpcErr *RPCError
}

func (env *testEnv) call(method string, authed bool, params ...interface{}) rpcResult {
	env.t.Helper()
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		data, err := json.Marshal(p)
		require.NoError(env.t, err)
		rawParams = append(rawParams, data)
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  rawParams,
	})
	require.NoError(env.t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	var resp RPCResponse
	require.NoError(env.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	out := rpcResult{status: rec.Code, rpcErr: resp.Error}
	if resp.Result != nil {
		data, err := json.Marshal(resp.Result)
		require.NoError(env.t, err)
		out.result = data
	}
	return out
}

func (env *testEnv) mustCall(method string, params ...interface{}) json.RawMessage {
	env.t.Helper()
	res := env.call(method, true, params...)
	require.Nil(env.t, res.rpcErr, "method %s failed: %+v", method, res.rpcErr)
	require.Equal(env.t, http.StatusOK, res.status)
	return res.result
}

func (env *testEnv) fund(addr string, amount int64) {
	env.t.Helper()
	env.mustCall("bank_mint", map[string]interface{}{
		"caller": authorityAddr,
		"to":     addr,
		"amount": fmt.Sprintf("%d", amount),
	})
}

func TestJobLifecycleOverRPC(t *testing.T) {
	env := newTestEnv(t)
	env.fund(employerAddr, 10_000)

	var posted jobJSON
	require.NoError(t, json.Unmarshal(env.mustCall("jobs_post", map[string]interface{}{
		"caller": employerAddr,
		"title":  "Build landing page",
		"budget": "1000",
	}), &posted))
	require.Equal(t, uint64(0), posted.ID)
	require.Equal(t, "open", posted.Status)
	require.Nil(t, posted.Freelancer)

	env.mustCall("jobs_escrow", map[string]interface{}{
		"id": 0, "amount": "1000", "caller": employerAddr,
	})
	env.mustCall("jobs_apply", map[string]interface{}{
		"id": 0, "caller": freelancerAddr,
	})
	env.mustCall("jobs_completeWork", map[string]interface{}{
		"id": 0, "caller": freelancerAddr,
	})
	env.mustCall("jobs_release", map[string]interface{}{
		"id": 0, "rating": 5, "caller": employerAddr,
	})

	var job jobJSON
	require.NoError(t, json.Unmarshal(env.mustCall("jobs_get", map[string]interface{}{"id": 0}), &job))
	require.Equal(t, "completed", job.Status)
	require.Equal(t, uint8(5), job.Rating)
	require.NotNil(t, job.Freelancer)
	require.Equal(t, freelancerAddr, *job.Freelancer)

	var balance balanceJSON
	require.NoError(t, json.Unmarshal(env.mustCall("bank_getBalance", map[string]interface{}{
		"address": freelancerAddr,
	}), &balance))
	require.Equal(t, "1000", balance.Balance)

	var rating ratingJSON
	require.NoError(t, json.Unmarshal(env.mustCall("reputation_getRating", map[string]interface{}{
		"address": freelancerAddr,
	}), &rating))
	require.Equal(t, uint64(1), rating.Count)
	require.Equal(t, float64(5), rating.Average)

	var escrowed string
	require.NoError(t, json.Unmarshal(env.mustCall("jobs_getEscrowed", map[string]interface{}{"id": 0}), &escrowed))
	require.Equal(t, "0", escrowed)
}

func TestJobsListAndCount(t *testing.T) {
	env := newTestEnv(t)
	env.fund(employerAddr, 10_000)

	for i := 0; i < 3; i++ {
		env.mustCall("jobs_post", map[string]interface{}{
			"caller": employerAddr,
			"title":  fmt.Sprintf("Job %d", i),
			"budget": "100",
		})
	}
	env.mustCall("jobs_escrow", map[string]interface{}{
		"id": 1, "amount": "100", "caller": employerAddr,
	})

	var count uint64
	require.NoError(t, json.Unmarshal(env.mustCall("jobs_getCount"), &count))
	require.Equal(t, uint64(3), count)

	var listings []jobJSON
	require.NoError(t, json.Unmarshal(env.mustCall("jobs_list"), &listings))
	require.Len(t, listings, 3)
	require.Equal(t, "100", listings[1].Escrowed)
	require.Empty(t, listings[0].Escrowed)
}

func TestMutationsRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	res := env.call("jobs_post", false, map[string]interface{}{
		"caller": employerAddr,
		"title":  "No token",
		"budget": "100",
	})
	require.Equal(t, http.StatusUnauthorized, res.status)
	require.NotNil(t, res.rpcErr)
	require.Equal(t, codeUnauthorized, res.rpcErr.Code)

	// Reads stay open.
	readRes := env.call("jobs_getCount", false)
	require.Equal(t, http.StatusOK, readRes.status)
	require.Nil(t, readRes.rpcErr)
}

func TestMutationRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.server.SetMutationLimit(rate.Limit(1), 1)
	env.fund(employerAddr, 10_000)

	res := env.call("jobs_post", true, map[string]interface{}{
		"caller": employerAddr,
		"title":  "Too fast",
		"budget": "100",
	})
	require.Equal(t, http.StatusTooManyRequests, res.status)
	require.NotNil(t, res.rpcErr)
	require.Equal(t, codeRateLimited, res.rpcErr.Code)
}

func TestErrorCodeMapping(t *testing.T) {
	env := newTestEnv(t)
	env.fund(employerAddr, 10_000)
	env.mustCall("jobs_post", map[string]interface{}{
		"caller": employerAddr,
		"title":  "Mapped",
		"budget": "500",
	})

	cases := []struct {
		name   string
		method string
		params map[string]interface{}
		status int
		code   int
	}{
		{
			name:   "unknown job",
			method: "jobs_get",
			params: map[string]interface{}{"id": 42},
			status: http.StatusNotFound,
			code:   codeJobsNotFound,
		},
		{
			name:   "escrow amount mismatch",
			method: "jobs_escrow",
			params: map[string]interface{}{"id": 0, "amount": "499", "caller": employerAddr},
			status: http.StatusConflict,
			code:   codeJobsConflict,
		},
		{
			name:   "escrow by stranger",
			method: "jobs_escrow",
			params: map[string]interface{}{"id": 0, "amount": "500", "caller": freelancerAddr},
			status: http.StatusForbidden,
			code:   codeJobsForbidden,
		},
		{
			name:   "apply before escrow",
			method: "jobs_apply",
			params: map[string]interface{}{"id": 0, "caller": freelancerAddr},
			status: http.StatusConflict,
			code:   codeJobsConflict,
		},
		{
			name:   "malformed address",
			method: "jobs_apply",
			params: map[string]interface{}{"id": 0, "caller": "not-an-address"},
			status: http.StatusBadRequest,
			code:   codeJobsInvalidParams,
		},
		{
			name:   "mint without authority",
			method: "bank_mint",
			params: map[string]interface{}{"caller": employerAddr, "to": employerAddr, "amount": "10"},
			status: http.StatusForbidden,
			code:   codeJobsForbidden,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := env.call(tc.method, true, tc.params)
			require.Equal(t, tc.status, res.status)
			require.NotNil(t, res.rpcErr)
			require.Equal(t, tc.code, res.rpcErr.Code)
		})
	}
}

func TestUnknownMethodAndMalformedEnvelope(t *testing.T) {
	env := newTestEnv(t)

	res := env.call("jobs_doesNotExist", true)
	require.Equal(t, http.StatusNotFound, res.status)
	require.Equal(t, codeMethodNotFound, res.rpcErr.Code)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeParseError, resp.Error.Code)
}

func TestListEventsFilter(t *testing.T) {
	env := newTestEnv(t)
	env.fund(employerAddr, 10_000)
	env.mustCall("jobs_post", map[string]interface{}{
		"caller": employerAddr,
		"title":  "Event source",
		"budget": "100",
	})

	var all []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.mustCall("jobs_listEvents"), &all))
	require.NotEmpty(t, all)

	var filtered []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.mustCall("jobs_listEvents", map[string]interface{}{
		"prefix": "jobs.",
	}), &filtered))
	require.Len(t, filtered, 1)
	require.Equal(t, "jobs.posted", filtered[0]["type"])

	limit := 1
	var limited []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.mustCall("jobs_listEvents", map[string]interface{}{
		"limit": limit,
	}), &limited))
	require.Len(t, limited, 1)
}

func TestRefundOverRPC(t *testing.T) {
	env := newTestEnv(t)
	env.fund(employerAddr, 10_000)
	now := int64(1_700_000_000)
	env.node.SetNowFunc(func() int64 { return now })

	env.mustCall("jobs_post", map[string]interface{}{
		"caller": employerAddr,
		"title":  "Abandoned work",
		"budget": "700",
	})
	env.mustCall("jobs_escrow", map[string]interface{}{
		"id": 0, "amount": "700", "caller": employerAddr,
	})
	env.mustCall("jobs_apply", map[string]interface{}{
		"id": 0, "caller": freelancerAddr,
	})

	res := env.call("jobs_refund", true, map[string]interface{}{
		"id": 0, "caller": employerAddr,
	})
	require.Equal(t, http.StatusConflict, res.status)
	require.Equal(t, codeJobsConflict, res.rpcErr.Code)

	now += int64(jobs.DefaultWorkWindow.Seconds()) + 1
	env.mustCall("jobs_refund", map[string]interface{}{
		"id": 0, "caller": employerAddr,
	})

	var job jobJSON
	require.NoError(t, json.Unmarshal(env.mustCall("jobs_get", map[string]interface{}{"id": 0}), &job))
	require.Equal(t, "open", job.Status)
	require.Nil(t, job.Freelancer)

	var balance balanceJSON
	require.NoError(t, json.Unmarshal(env.mustCall("bank_getBalance", map[string]interface{}{
		"address": employerAddr,
	}), &balance))
	require.Equal(t, big.NewInt(10_000).String(), balance.Balance)
}
