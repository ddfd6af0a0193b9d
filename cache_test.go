package guardedengineproxy

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"gotest.tools/assert"

	"github.com/Rocket-Rescue-Node/guarded-engine-proxy/enginetypes"
)

func testPair(n int) enginetypes.ForkchoiceCall {
	hash := "0x" + strings.Repeat(fmt.Sprintf("%02x", n%256), 32)
	payloadID := fmt.Sprintf("0x%016x", n)
	return enginetypes.ForkchoiceCall{
		Request: enginetypes.ForkchoiceUpdatedRequest{
			JSONRPC: "2.0",
			ID:      uint64(n),
			Method:  enginetypes.ForkchoiceUpdatedV2,
			State: enginetypes.ForkchoiceStateV1{
				HeadBlockHash:      hash,
				SafeBlockHash:      hash,
				FinalizedBlockHash: hash,
			},
		},
		Response: enginetypes.ForkchoiceUpdatedResponse{
			JSONRPC: "2.0",
			ID:      uint64(n),
			Result: &enginetypes.ForkchoiceUpdatedResult{
				PayloadStatus: enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid},
				PayloadID:     &payloadID,
			},
		},
	}
}

func TestCacheEmptyBeforeFirstAcceptance(t *testing.T) {
	c := &LegitimacyCache{}
	_, ok := c.Read()
	assert.Assert(t, !ok)
}

func TestCacheReplaceThenRead(t *testing.T) {
	c := &LegitimacyCache{}
	p := testPair(1)
	c.Replace(p)

	got, ok := c.Read()
	assert.Assert(t, ok)
	assert.Equal(t, got.Request.State.HeadBlockHash, p.Request.State.HeadBlockHash)
	assert.Equal(t, got.Request.ID, p.Request.ID)

	// Last acceptance wins; the old pair is discarded.
	c.Replace(testPair(2))
	got, ok = c.Read()
	assert.Assert(t, ok)
	assert.Equal(t, got.Request.ID, uint64(2))
}

func TestCacheConcurrentReplace(t *testing.T) {
	const n = 64
	c := &LegitimacyCache{}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Replace(testPair(i))
		}(i)
	}
	wg.Wait()

	// The slot holds exactly one of the submitted pairs, never a mixture
	// of fields from two.
	got, ok := c.Read()
	assert.Assert(t, ok)
	i := int(got.Request.ID)
	assert.Assert(t, i >= 0 && i < n)
	want := testPair(i)
	assert.Equal(t, got.Request.State.HeadBlockHash, want.Request.State.HeadBlockHash)
	assert.Equal(t, got.Response.ID, want.Response.ID)
	assert.Equal(t, *got.Response.Result.PayloadID, *want.Response.Result.PayloadID)
}

func TestCacheConcurrentReaders(t *testing.T) {
	c := &LegitimacyCache{}
	c.Replace(testPair(3))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok := c.Read()
			if !ok || got.Request.ID != 3 {
				t.Error("reader observed unexpected cache content")
			}
		}()
	}
	wg.Wait()
}
