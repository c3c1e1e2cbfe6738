package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	abci "github.com/cometbft/cometbft/abci/types"
)

const (
	EventProposalCreatedType       = "proposal_created"
	EventStateChangedType          = "state_changed"
	EventRegistrationRequestedType = "registration_requested"
	EventRegistrationApprovedType  = "registration_approved"
	EventRegistrationRejectedType  = "registration_rejected"
	EventVoterRegisteredType       = "voter_registered"
	EventVoteCastType              = "vote_cast"
	EventResultRevealedType        = "result_revealed"
	EventConfigUpdatedType         = "config_updated"
)

// Event is a lifecycle notification produced by a committed engine operation.
type Event interface {
	EventType() string
	Proposal() uint64
}

type EventProposalCreated struct {
	ProposalID   uint64 `json:"proposal"`
	Creator      string `json:"creator"`
	Title        string `json:"title"`
	Rule         uint64 `json:"rule"`
	Privacy      uint64 `json:"privacy"`
	Registration uint64 `json:"registration"`
	Options      uint64 `json:"options"`
}

func (e *EventProposalCreated) EventType() string { return EventProposalCreatedType }
func (e *EventProposalCreated) Proposal() uint64  { return e.ProposalID }

func EncodeEventProposalCreated(event *EventProposalCreated) abci.Event {
	return abci.Event{
		Type: EventProposalCreatedType,
		Attributes: []abci.EventAttribute{
			{Key: "proposal", Value: fmt.Sprintf("%v", event.ProposalID), Index: true},
			{Key: "creator", Value: event.Creator, Index: true},
			{Key: "title", Value: event.Title, Index: false},
			{Key: "rule", Value: fmt.Sprintf("%v", event.Rule), Index: false},
			{Key: "privacy", Value: fmt.Sprintf("%v", event.Privacy), Index: false},
			{Key: "registration", Value: fmt.Sprintf("%v", event.Registration), Index: false},
			{Key: "options", Value: fmt.Sprintf("%v", event.Options), Index: false},
		},
	}
}

func DecodeEventProposalCreated(originEvent abci.Event) *EventProposalCreated {
	event := &EventProposalCreated{}
	for _, v := range originEvent.Attributes {
		var err error
		switch v.Key {
		case "proposal":
			event.ProposalID, err = strconv.ParseUint(v.Value, 10, 64)
		case "creator":
			event.Creator = v.Value
		case "title":
			event.Title = v.Value
		case "rule":
			event.Rule, err = strconv.ParseUint(v.Value, 10, 64)
		case "privacy":
			event.Privacy, err = strconv.ParseUint(v.Value, 10, 64)
		case "registration":
			event.Registration, err = strconv.ParseUint(v.Value, 10, 64)
		case "options":
			event.Options, err = strconv.ParseUint(v.Value, 10, 64)
		}
		if err != nil {
			return nil
		}
	}
	return event
}

type EventStateChanged struct {
	ProposalID uint64 `json:"proposal"`
	Old        uint64 `json:"old"`
	New        uint64 `json:"new"`
}

func (e *EventStateChanged) EventType() string { return EventStateChangedType }
func (e *EventStateChanged) Proposal() uint64  { return e.ProposalID }

func EncodeEventStateChanged(event *EventStateChanged) abci.Event {
	return abci.Event{
		Type: EventStateChangedType,
		Attributes: []abci.EventAttribute{
			{Key: "proposal", Value: fmt.Sprintf("%v", event.ProposalID), Index: true},
			{Key: "old", Value: fmt.Sprintf("%v", event.Old), Index: false},
			{Key: "new", Value: fmt.Sprintf("%v", event.New), Index: true},
		},
	}
}

func DecodeEventStateChanged(originEvent abci.Event) *EventStateChanged {
	event := &EventStateChanged{}
	for _, v := range originEvent.Attributes {
		var err error
		switch v.Key {
		case "proposal":
			event.ProposalID, err = strconv.ParseUint(v.Value, 10, 64)
		case "old":
			event.Old, err = strconv.ParseUint(v.Value, 10, 64)
		case "new":
			event.New, err = strconv.ParseUint(v.Value, 10, 64)
		}
		if err != nil {
			return nil
		}
	}
	return event
}

// EventRegistration carries the requested, approved and rejected notifications.
type EventRegistration struct {
	Type        string `json:"-"`
	ProposalID  uint64 `json:"proposal"`
	Voter       string `json:"voter"`
	WeightGroup uint64 `json:"weightGroup"`
}

func (e *EventRegistration) EventType() string { return e.Type }
func (e *EventRegistration) Proposal() uint64  { return e.ProposalID }

func EncodeEventRegistration(event *EventRegistration) abci.Event {
	return abci.Event{
		Type: event.Type,
		Attributes: []abci.EventAttribute{
			{Key: "proposal", Value: fmt.Sprintf("%v", event.ProposalID), Index: true},
			{Key: "voter", Value: event.Voter, Index: true},
			{Key: "weightGroup", Value: fmt.Sprintf("%v", event.WeightGroup), Index: false},
		},
	}
}

func DecodeEventRegistration(originEvent abci.Event) *EventRegistration {
	event := &EventRegistration{Type: originEvent.Type}
	for _, v := range originEvent.Attributes {
		var err error
		switch v.Key {
		case "proposal":
			event.ProposalID, err = strconv.ParseUint(v.Value, 10, 64)
		case "voter":
			event.Voter = v.Value
		case "weightGroup":
			event.WeightGroup, err = strconv.ParseUint(v.Value, 10, 64)
		}
		if err != nil {
			return nil
		}
	}
	return event
}

type EventVoterRegistered struct {
	ProposalID  uint64 `json:"proposal"`
	Voter       string `json:"voter"`
	WeightGroup uint64 `json:"weightGroup"`
	Weight      uint64 `json:"weight"`
	Commitment  string `json:"commitment,omitempty"`
	Member      int64  `json:"member"`
}

func (e *EventVoterRegistered) EventType() string { return EventVoterRegisteredType }
func (e *EventVoterRegistered) Proposal() uint64  { return e.ProposalID }

func EncodeEventVoterRegistered(event *EventVoterRegistered) abci.Event {
	return abci.Event{
		Type: EventVoterRegisteredType,
		Attributes: []abci.EventAttribute{
			{Key: "proposal", Value: fmt.Sprintf("%v", event.ProposalID), Index: true},
			{Key: "voter", Value: event.Voter, Index: true},
			{Key: "weightGroup", Value: fmt.Sprintf("%v", event.WeightGroup), Index: false},
			{Key: "weight", Value: fmt.Sprintf("%v", event.Weight), Index: false},
			{Key: "commitment", Value: event.Commitment, Index: false},
			{Key: "member", Value: fmt.Sprintf("%v", event.Member), Index: false},
		},
	}
}

func DecodeEventVoterRegistered(originEvent abci.Event) *EventVoterRegistered {
	event := &EventVoterRegistered{Member: -1}
	for _, v := range originEvent.Attributes {
		var err error
		switch v.Key {
		case "proposal":
			event.ProposalID, err = strconv.ParseUint(v.Value, 10, 64)
		case "voter":
			event.Voter = v.Value
		case "weightGroup":
			event.WeightGroup, err = strconv.ParseUint(v.Value, 10, 64)
		case "weight":
			event.Weight, err = strconv.ParseUint(v.Value, 10, 64)
		case "commitment":
			event.Commitment = v.Value
		case "member":
			event.Member, err = strconv.ParseInt(v.Value, 10, 64)
		}
		if err != nil {
			return nil
		}
	}
	return event
}

// EventVoteCast has an empty Voter for anonymous ballots and an empty Nullifier otherwise.
type EventVoteCast struct {
	ProposalID uint64 `json:"proposal"`
	Voter      string `json:"voter,omitempty"`
	Nullifier  string `json:"nullifier,omitempty"`
	Choice     Choice `json:"choice"`
	Weight     uint64 `json:"weight"`
}

func (e *EventVoteCast) EventType() string { return EventVoteCastType }
func (e *EventVoteCast) Proposal() uint64  { return e.ProposalID }

func EncodeEventVoteCast(event *EventVoteCast) abci.Event {
	choice, _ := json.Marshal(event.Choice)
	return abci.Event{
		Type: EventVoteCastType,
		Attributes: []abci.EventAttribute{
			{Key: "proposal", Value: fmt.Sprintf("%v", event.ProposalID), Index: true},
			{Key: "voter", Value: event.Voter, Index: true},
			{Key: "nullifier", Value: event.Nullifier, Index: true},
			{Key: "choice", Value: string(choice), Index: false},
			{Key: "weight", Value: fmt.Sprintf("%v", event.Weight), Index: false},
		},
	}
}

func DecodeEventVoteCast(originEvent abci.Event) *EventVoteCast {
	event := &EventVoteCast{}
	for _, v := range originEvent.Attributes {
		var err error
		switch v.Key {
		case "proposal":
			event.ProposalID, err = strconv.ParseUint(v.Value, 10, 64)
		case "voter":
			event.Voter = v.Value
		case "nullifier":
			event.Nullifier = v.Value
		case "choice":
			err = json.Unmarshal([]byte(v.Value), &event.Choice)
		case "weight":
			event.Weight, err = strconv.ParseUint(v.Value, 10, 64)
		}
		if err != nil {
			return nil
		}
	}
	return event
}

type EventResultRevealed struct {
	ProposalID    uint64   `json:"proposal"`
	WinningOption uint64   `json:"winningOption"`
	Margin        uint64   `json:"margin"`
	TotalVotes    uint64   `json:"totalVotes"`
	Passed        bool     `json:"passed"`
	Counts        []uint64 `json:"counts"`
}

func (e *EventResultRevealed) EventType() string { return EventResultRevealedType }
func (e *EventResultRevealed) Proposal() uint64  { return e.ProposalID }

func EncodeEventResultRevealed(event *EventResultRevealed) abci.Event {
	counts := make([]string, len(event.Counts))
	for i, c := range event.Counts {
		counts[i] = fmt.Sprintf("%v", c)
	}
	return abci.Event{
		Type: EventResultRevealedType,
		Attributes: []abci.EventAttribute{
			{Key: "proposal", Value: fmt.Sprintf("%v", event.ProposalID), Index: true},
			{Key: "winningOption", Value: fmt.Sprintf("%v", event.WinningOption), Index: false},
			{Key: "margin", Value: fmt.Sprintf("%v", event.Margin), Index: false},
			{Key: "totalVotes", Value: fmt.Sprintf("%v", event.TotalVotes), Index: false},
			{Key: "passed", Value: fmt.Sprintf("%v", event.Passed), Index: false},
			{Key: "counts", Value: strings.Join(counts, ","), Index: false},
		},
	}
}

func DecodeEventResultRevealed(originEvent abci.Event) *EventResultRevealed {
	event := &EventResultRevealed{Counts: []uint64{}}
	for _, v := range originEvent.Attributes {
		var err error
		switch v.Key {
		case "proposal":
			event.ProposalID, err = strconv.ParseUint(v.Value, 10, 64)
		case "winningOption":
			event.WinningOption, err = strconv.ParseUint(v.Value, 10, 64)
		case "margin":
			event.Margin, err = strconv.ParseUint(v.Value, 10, 64)
		case "totalVotes":
			event.TotalVotes, err = strconv.ParseUint(v.Value, 10, 64)
		case "passed":
			event.Passed, err = strconv.ParseBool(v.Value)
		case "counts":
			if v.Value == "" {
				continue
			}
			for _, s := range strings.Split(v.Value, ",") {
				var c uint64
				c, err = strconv.ParseUint(s, 10, 64)
				if err != nil {
					return nil
				}
				event.Counts = append(event.Counts, c)
			}
		}
		if err != nil {
			return nil
		}
	}
	return event
}

// EventConfigUpdated records a creator edit to the whitelist or weight table.
type EventConfigUpdated struct {
	ProposalID uint64 `json:"proposal"`
	Field      string `json:"field"`
	Detail     string `json:"detail"`
}

func (e *EventConfigUpdated) EventType() string { return EventConfigUpdatedType }
func (e *EventConfigUpdated) Proposal() uint64  { return e.ProposalID }

func EncodeEventConfigUpdated(event *EventConfigUpdated) abci.Event {
	return abci.Event{
		Type: EventConfigUpdatedType,
		Attributes: []abci.EventAttribute{
			{Key: "proposal", Value: fmt.Sprintf("%v", event.ProposalID), Index: true},
			{Key: "field", Value: event.Field, Index: true},
			{Key: "detail", Value: event.Detail, Index: false},
		},
	}
}

func DecodeEventConfigUpdated(originEvent abci.Event) *EventConfigUpdated {
	event := &EventConfigUpdated{}
	for _, v := range originEvent.Attributes {
		var err error
		switch v.Key {
		case "proposal":
			event.ProposalID, err = strconv.ParseUint(v.Value, 10, 64)
		case "field":
			event.Field = v.Value
		case "detail":
			event.Detail = v.Value
		}
		if err != nil {
			return nil
		}
	}
	return event
}

func EncodeEvent(ev Event) abci.Event {
	switch e := ev.(type) {
	case *EventProposalCreated:
		return EncodeEventProposalCreated(e)
	case *EventStateChanged:
		return EncodeEventStateChanged(e)
	case *EventRegistration:
		return EncodeEventRegistration(e)
	case *EventVoterRegistered:
		return EncodeEventVoterRegistered(e)
	case *EventVoteCast:
		return EncodeEventVoteCast(e)
	case *EventResultRevealed:
		return EncodeEventResultRevealed(e)
	case *EventConfigUpdated:
		return EncodeEventConfigUpdated(e)
	}
	return abci.Event{Type: ev.EventType()}
}

// DecodeEvent returns nil for unknown or malformed events.
func DecodeEvent(originEvent abci.Event) Event {
	var ev Event
	switch originEvent.Type {
	case EventProposalCreatedType:
		if e := DecodeEventProposalCreated(originEvent); e != nil {
			ev = e
		}
	case EventStateChangedType:
		if e := DecodeEventStateChanged(originEvent); e != nil {
			ev = e
		}
	case EventRegistrationRequestedType, EventRegistrationApprovedType, EventRegistrationRejectedType:
		if e := DecodeEventRegistration(originEvent); e != nil {
			ev = e
		}
	case EventVoterRegisteredType:
		if e := DecodeEventVoterRegistered(originEvent); e != nil {
			ev = e
		}
	case EventVoteCastType:
		if e := DecodeEventVoteCast(originEvent); e != nil {
			ev = e
		}
	case EventResultRevealedType:
		if e := DecodeEventResultRevealed(originEvent); e != nil {
			ev = e
		}
	case EventConfigUpdatedType:
		if e := DecodeEventConfigUpdated(originEvent); e != nil {
			ev = e
		}
	}
	return ev
}

// MarshalEvent is the canonical encoding used as an audit log leaf.
func MarshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Data Event  `json:"data"`
	}{ev.EventType(), ev})
}
