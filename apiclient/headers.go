package apiclient

import (
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	HeaderRequestedWith      = "X-Requested-With"
	HeaderContentTypeOptions = "X-Content-Type-Options"
	HeaderRequestTime        = "X-Request-Time"
	HeaderRequestID          = "X-Request-ID"

	requestedWithXHR = "XMLHttpRequest"
	noSniff          = "nosniff"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// newRequestID returns a ULID stamped with now, so the id sorts by request time.
func newRequestID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// setDefensiveHeaders applies the headers every outgoing call carries.
func setDefensiveHeaders(req *http.Request, now time.Time) {
	req.Header.Set(HeaderRequestedWith, requestedWithXHR)
	req.Header.Set(HeaderContentTypeOptions, noSniff)
	if isMutating(req.Method) {
		req.Header.Set(HeaderRequestTime, strconv.FormatInt(now.UnixMilli(), 10))
		req.Header.Set(HeaderRequestID, newRequestID(now))
	}
}
