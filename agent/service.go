package agent

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

type Service struct {
	engine  *gin.Engine
	indexer *ChainIndexer
	server  *http.Server
}

func NewService(listenAddr string, indexer *ChainIndexer) *Service {
	r := gin.Default()
	s := &Service{
		engine:  r,
		indexer: indexer,
		server:  &http.Server{Addr: listenAddr, Handler: r},
	}
	s.engine.POST("/getProposals", s.handleGetProposals)
	s.engine.POST("/getVotes", s.handleGetVotes)
	s.engine.POST("/getRegistrations", s.handleGetRegistrations)
	return s
}

func (s *Service) Handler() http.Handler {
	return s.engine
}

// Start serves until Stop is called.
func (s *Service) Start() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type ProposalInfo struct {
	Proposal      Proposal       `json:"proposal"`
	StateChanges  []StateChange  `json:"stateChanges"`
	ConfigChanges []ConfigChange `json:"configChanges"`
}

type GetProposalsReq struct {
	ProposalId uint64 `json:"proposalId"`
	Creator    string `json:"creator"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
}

type GetProposalResponse struct {
	Proposals []ProposalInfo `json:"proposals"`
	Total     uint64         `json:"total"`
}

func (s *Service) getProposalInfo(proposal Proposal) (info ProposalInfo, err error) {
	info.Proposal = proposal
	if info.StateChanges, err = s.indexer.getStateChanges(proposal.Id); err != nil {
		return
	}
	info.ConfigChanges, err = s.indexer.getConfigChanges(proposal.Id)
	return
}

func (s *Service) handleGetProposals(c *gin.Context) {
	var response GetProposalResponse
	response.Proposals = make([]ProposalInfo, 0)
	var requestData GetProposalsReq
	if err := c.ShouldBindJSON(&requestData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if requestData.ProposalId != 0 {
		proposal, err := s.indexer.getProposalById(requestData.ProposalId)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "proposal not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		info, err := s.getProposalInfo(proposal)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		response.Proposals = append(response.Proposals, info)
		response.Total = 1
		c.JSON(http.StatusOK, response)
		return
	}

	proposals, total, err := s.indexer.getProposals(requestData.Creator, requestData.Page, requestData.PageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	response.Total = total
	for _, proposal := range proposals {
		info, err := s.getProposalInfo(proposal)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		response.Proposals = append(response.Proposals, info)
	}
	c.JSON(http.StatusOK, response)
}

type GetVotesReq struct {
	ProposalId uint64 `json:"proposalId"`
	Voter      string `json:"voter"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
}

type GetVotesResponse struct {
	Votes []Vote `json:"votes"`
	Total uint64 `json:"total"`
}

func (s *Service) handleGetVotes(c *gin.Context) {
	var requestData GetVotesReq
	if err := c.ShouldBindJSON(&requestData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if requestData.ProposalId == 0 && requestData.Voter == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proposalId or voter is required"})
		return
	}
	votes, total, err := s.indexer.getVotes(requestData.ProposalId, requestData.Voter, requestData.Page, requestData.PageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, GetVotesResponse{Votes: votes, Total: total})
}

type GetRegistrationsReq struct {
	ProposalId uint64 `json:"proposalId"`
	Status     string `json:"status"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
}

type GetRegistrationsResponse struct {
	Registrations []Registration `json:"registrations"`
	Total         uint64         `json:"total"`
}

func (s *Service) handleGetRegistrations(c *gin.Context) {
	var requestData GetRegistrationsReq
	if err := c.ShouldBindJSON(&requestData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if requestData.ProposalId == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proposalId is required"})
		return
	}
	regs, total, err := s.indexer.getRegistrations(requestData.ProposalId, requestData.Status, requestData.Page, requestData.PageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, GetRegistrationsResponse{Registrations: regs, Total: total})
}
