package registrar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maildash/backend/internal/credcache"
)

const checkResponse = `<?xml version="1.0" encoding="utf-8"?>
<ApiResponse Status="OK" xmlns="http://api.namecheap.com/xml.response">
  <Errors />
  <RequestedCommand>namecheap.domains.check</RequestedCommand>
  <CommandResponse Type="namecheap.domains.check">
    <DomainCheckResult Domain="example.com" Available="false" IsPremiumName="false" />
    <DomainCheckResult Domain="fresh-name.dev" Available="true" IsPremiumName="false" />
  </CommandResponse>
</ApiResponse>`

const createResponse = `<ApiResponse Status="OK">
  <CommandResponse Type="namecheap.domains.create">
    <DomainCreateResult Domain="fresh-name.dev" Registered="true" ChargedAmount="12.88" DomainID="9007" OrderID="196074" TransactionID="380716" NonRealTimeDomain="false" />
  </CommandResponse>
</ApiResponse>`

const listResponse = `<ApiResponse Status="OK">
  <CommandResponse Type="namecheap.domains.getList">
    <DomainGetListResult>
      <Domain ID="127" Name="Example.com" User="owner" Created="02/15/2016" Expires="02/15/2027" IsExpired="false" IsLocked="false" AutoRenew="true" />
      <Domain ID="128" Name="old.org" User="owner" Created="01/01/2015" Expires="01/01/2020" IsExpired="true" IsLocked="false" AutoRenew="false" />
    </DomainGetListResult>
    <Paging><TotalItems>2</TotalItems><CurrentPage>1</CurrentPage><PageSize>100</PageSize></Paging>
  </CommandResponse>
</ApiResponse>`

const errorResponse = `<ApiResponse Status="ERROR">
  <Errors><Error Number="1011102">API Key is invalid or API access has not been enabled</Error></Errors>
  <CommandResponse />
</ApiResponse>`

var testContact = Contact{
	FirstName:     "Ada",
	LastName:      "Lovelace",
	Address1:      "1 Main St",
	City:          "Springfield",
	StateProvince: "IL",
	PostalCode:    "62701",
	Country:       "US",
	Phone:         "+1.5555550100",
	EmailAddress:  "ops@maildash.test",
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var loads int32
	backend := credcache.NewLocalBackend(time.Hour)
	t.Cleanup(backend.Close)
	creds := credcache.New(backend, func(ctx context.Context, key string) (*credcache.Credential, error) {
		atomic.AddInt32(&loads, 1)
		return &credcache.Credential{APIUser: "api", APIKey: "key", Username: "api", ClientIP: "127.0.0.1"}, nil
	}, time.Hour, nil)

	return NewClient(Options{Endpoint: srv.URL, Timeout: time.Second, Contact: testContact}, creds, nil), &loads
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(body))
	}
}

func TestClient_Check(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, commandCheck, r.URL.Query().Get("Command"))
		assert.Equal(t, "key", r.URL.Query().Get("ApiKey"))
		assert.Equal(t, "example.com,fresh-name.dev", r.URL.Query().Get("DomainList"))
		respond(checkResponse)(w, r)
	})

	result, err := client.Check(context.Background(), "owner-1", []string{"example.com", "fresh-name.dev"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.False(t, result[0].Available)
	assert.True(t, result[1].Available)
}

func TestClient_CheckMissingResult(t *testing.T) {
	client, _ := newTestClient(t, respond(checkResponse))

	_, err := client.Check(context.Background(), "owner-1", []string{"another.net"})
	var formatErr *UpstreamFormatError
	assert.True(t, errors.As(err, &formatErr))
}

func TestClient_Register(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, commandCreate, q.Get("Command"))
		assert.Equal(t, "fresh-name.dev", q.Get("DomainName"))
		assert.Equal(t, "2", q.Get("Years"))
		for _, prefix := range []string{"Registrant", "Tech", "Admin", "AuxBilling"} {
			assert.Equal(t, "Ada", q.Get(prefix+"FirstName"), prefix)
			assert.Equal(t, "Lovelace", q.Get(prefix+"LastName"), prefix)
			assert.Equal(t, "1 Main St", q.Get(prefix+"Address1"), prefix)
			assert.Equal(t, "Springfield", q.Get(prefix+"City"), prefix)
			assert.Equal(t, "IL", q.Get(prefix+"StateProvince"), prefix)
			assert.Equal(t, "62701", q.Get(prefix+"PostalCode"), prefix)
			assert.Equal(t, "US", q.Get(prefix+"Country"), prefix)
			assert.Equal(t, "+1.5555550100", q.Get(prefix+"Phone"), prefix)
			assert.Equal(t, "ops@maildash.test", q.Get(prefix+"EmailAddress"), prefix)
		}
		respond(createResponse)(w, r)
	})

	reg, err := client.Register(context.Background(), "owner-1", "fresh-name.dev", 2)
	require.NoError(t, err)
	assert.Equal(t, "fresh-name.dev", reg.Name)
	assert.Equal(t, "196074", reg.OrderID)
	assert.False(t, reg.Pending)
}

func TestClient_ListDomains(t *testing.T) {
	client, _ := newTestClient(t, respond(listResponse))

	domains, err := client.ListDomains(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "example.com", domains[0].Name)
	require.NotNil(t, domains[0].ExpiresAt)
	assert.Equal(t, 2027, domains[0].ExpiresAt.Year())
	assert.True(t, domains[0].AutoRenew)
	assert.True(t, domains[1].IsExpired)
}

func TestClient_MalformedResponses(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "非XML响应", body: "<html>gateway error</html"},
		{name: "未知状态", body: `<ApiResponse Status="WARNING"><CommandResponse/></ApiResponse>`},
		{name: "缺少CommandResponse", body: `<ApiResponse Status="OK"></ApiResponse>`},
		{name: "布尔值非法", body: `<ApiResponse Status="OK"><CommandResponse><DomainCheckResult Domain="a.com" Available="maybe"/></CommandResponse></ApiResponse>`},
		{name: "日期格式非法", body: `<ApiResponse Status="OK"><CommandResponse><DomainGetListResult><Domain ID="1" Name="a.com" Created="2016-02-15" Expires=""/></DomainGetListResult></CommandResponse></ApiResponse>`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, respond(tc.body))

			var err error
			if tc.name == "日期格式非法" {
				_, err = client.ListDomains(context.Background(), "owner-1")
			} else {
				_, err = client.Check(context.Background(), "owner-1", []string{"a.com"})
			}
			var formatErr *UpstreamFormatError
			assert.True(t, errors.As(err, &formatErr), "got %v", err)
		})
	}
}

func TestClient_APIErrorInvalidatesCredential(t *testing.T) {
	client, loads := newTestClient(t, respond(errorResponse))

	_, err := client.Check(context.Background(), "owner-1", []string{"a.com"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.HasNumber("1011102"))

	_, _ = client.Check(context.Background(), "owner-1", []string{"a.com"})
	assert.Equal(t, int32(2), atomic.LoadInt32(loads))
}

func TestClient_Timeout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := client.Check(context.Background(), "owner-1", []string{"a.com"})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestFake(t *testing.T) {
	f := NewFake("taken.com")
	ctx := context.Background()

	result, err := f.Check(ctx, "op", []string{"taken.com", "Free.com"})
	require.NoError(t, err)
	assert.False(t, result[0].Available)
	assert.True(t, result[1].Available)

	_, err = f.Register(ctx, "op", "free.com", 1)
	require.NoError(t, err)
	_, err = f.Register(ctx, "other", "free.com", 1)
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))

	domains, err := f.ListDomains(ctx, "op")
	require.NoError(t, err)
	require.Len(t, domains, 1)
	assert.Equal(t, "free.com", domains[0].Name)
}
