package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calehh/hac-vote/types"
)

func newIndexer(t *testing.T) *ChainIndexer {
	t.Helper()
	c, err := NewChainIndexer(cmtlog.NewNopLogger(), filepath.Join(t.TempDir(), "index.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func encode(events ...types.Event) []abci.Event {
	out := make([]abci.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, types.EncodeEvent(ev))
	}
	return out
}

const (
	alice = "0x00000000000000000000000000000000000000a1"
	bob   = "0x00000000000000000000000000000000000000b2"
)

func seed(t *testing.T, c *ChainIndexer) {
	t.Helper()
	require.NoError(t, c.Index(1, encode(
		&types.EventProposalCreated{ProposalID: 1, Creator: alice, Title: "budget", Options: 2},
		&types.EventProposalCreated{ProposalID: 2, Creator: bob, Title: "roadmap", Options: 3},
	)))
	require.NoError(t, c.Index(2, encode(
		&types.EventStateChanged{ProposalID: 1, Old: uint64(types.StateCreated), New: uint64(types.StateRegistration)},
		&types.EventRegistration{Type: types.EventRegistrationRequestedType, ProposalID: 1, Voter: bob},
	)))
	require.NoError(t, c.Index(3, encode(
		&types.EventRegistration{Type: types.EventRegistrationApprovedType, ProposalID: 1, Voter: bob},
		&types.EventVoterRegistered{ProposalID: 1, Voter: bob, Weight: 1, Member: -1},
		&types.EventStateChanged{ProposalID: 1, Old: uint64(types.StateRegistration), New: uint64(types.StateVoting)},
	)))
	require.NoError(t, c.Index(4, encode(
		&types.EventVoteCast{ProposalID: 1, Voter: bob, Choice: types.SingleChoice(1), Weight: 1},
		&types.EventConfigUpdated{ProposalID: 2, Field: "whitelist", Detail: "2 entries"},
	)))
	require.NoError(t, c.Index(5, encode(
		&types.EventStateChanged{ProposalID: 1, Old: uint64(types.StateVoting), New: uint64(types.StateFinalized)},
		&types.EventResultRevealed{ProposalID: 1, WinningOption: 1, Margin: 1, TotalVotes: 1, Passed: false, Counts: []uint64{0, 1}},
	)))
}

func TestIndexerRecordsLifecycle(t *testing.T) {
	c := newIndexer(t)
	seed(t, c)
	assert.Equal(t, int64(6), c.Height)

	p, err := c.getProposalById(1)
	require.NoError(t, err)
	assert.Equal(t, "budget", p.Title)
	assert.Equal(t, uint64(types.StateFinalized), p.State)
	assert.True(t, p.Revealed)
	assert.Equal(t, "[0,1]", p.Counts)
	assert.Equal(t, uint64(1), p.CreateHeight)
	assert.Equal(t, uint64(5), p.UpdateHeight)

	changes, err := c.getStateChanges(1)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, uint64(types.StateRegistration), changes[0].New)
	assert.Equal(t, uint64(2), changes[0].Height)

	regs, total, err := c.getRegistrations(1, "", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	require.Len(t, regs, 1)
	assert.Equal(t, RegistrationRegistered, regs[0].Status)
	assert.Equal(t, uint64(3), regs[0].Height)

	votes, total, err := c.getVotes(0, bob, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	require.Len(t, votes, 1)
	var choice types.Choice
	require.NoError(t, json.Unmarshal([]byte(votes[0].Choice), &choice))
	assert.Equal(t, uint32(1), choice.Option)

	cfg, err := c.getConfigChanges(2)
	require.NoError(t, err)
	require.Len(t, cfg, 1)
	assert.Equal(t, "whitelist", cfg[0].Field)
}

func TestIndexerResumesFromCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	c, err := NewChainIndexer(cmtlog.NewNopLogger(), path, "")
	require.NoError(t, err)
	require.NoError(t, c.Index(7, nil))
	require.NoError(t, c.Close())

	c, err = NewChainIndexer(cmtlog.NewNopLogger(), path, "")
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, int64(8), c.Height)
}

func TestIndexerSkipsForeignEvents(t *testing.T) {
	c := newIndexer(t)
	err := c.Index(1, []abci.Event{
		{Type: "transfer", Attributes: []abci.EventAttribute{{Key: "amount", Value: "1"}}},
		{Type: types.EventStateChangedType, Attributes: []abci.EventAttribute{{Key: "proposal", Value: "x"}}},
	})
	require.NoError(t, err)
	changes, err := c.getStateChanges(0)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestIndexerOffline(t *testing.T) {
	c := newIndexer(t)
	assert.ErrorIs(t, c.Start(context.Background()), ErrIndexerOffline)
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	dat, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(dat))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestService(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := newIndexer(t)
	seed(t, c)
	h := NewService("127.0.0.1:0", c).Handler()

	w := post(t, h, "/getProposals", GetProposalsReq{PageSize: 10})
	require.Equal(t, http.StatusOK, w.Code)
	var proposals GetProposalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &proposals))
	assert.Equal(t, uint64(2), proposals.Total)
	require.Len(t, proposals.Proposals, 2)
	assert.Equal(t, uint64(2), proposals.Proposals[0].Proposal.Id)
	assert.Len(t, proposals.Proposals[1].StateChanges, 3)

	w = post(t, h, "/getProposals", GetProposalsReq{Creator: alice})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &proposals))
	assert.Equal(t, uint64(1), proposals.Total)

	w = post(t, h, "/getProposals", GetProposalsReq{ProposalId: 9})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = post(t, h, "/getVotes", GetVotesReq{ProposalId: 1})
	require.Equal(t, http.StatusOK, w.Code)
	var votes GetVotesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &votes))
	assert.Len(t, votes.Votes, 1)

	w = post(t, h, "/getVotes", GetVotesReq{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, h, "/getRegistrations", GetRegistrationsReq{ProposalId: 1, Status: RegistrationPending})
	require.Equal(t, http.StatusOK, w.Code)
	var regs GetRegistrationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &regs))
	assert.Equal(t, uint64(0), regs.Total)
}

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	fail     error
	closed   int
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func TestNatsRelay(t *testing.T) {
	conn := &fakeConn{}
	r := newNatsRelay(conn, "", cmtlog.NewNopLogger())

	require.NoError(t, r.Deliver(&types.EventStateChanged{ProposalID: 4, Old: 0, New: 1}))
	require.Equal(t, []string{"hacvote.proposal.4.state_changed"}, conn.subjects)
	assert.JSONEq(t, `{"type":"state_changed","data":{"proposal":4,"old":0,"new":1}}`, string(conn.payloads[0]))

	conn.fail = errors.New("nats: connection closed")
	assert.Error(t, r.Deliver(&types.EventStateChanged{ProposalID: 4}))

	r.Close()
	r.Close()
	assert.Equal(t, 1, conn.closed)
}
