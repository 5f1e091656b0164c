package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"invite-engine/internal/invites"
	"invite-engine/internal/models"
)

type createEventRequest struct {
	Name            string `json:"name" binding:"required"`
	HostName        string `json:"host_name"`
	PackageTier     string `json:"package_tier" binding:"required"`
	InvitationImage string `json:"invitation_image"`
	InvitationText  string `json:"invitation_text"`
	EventDate       string `json:"event_date"`
	EventTime       string `json:"event_time"`
	Location        string `json:"location"`
	MapLink         string `json:"map_link"`
}

func (s *Server) handleCreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
		return
	}

	event := &models.Event{
		Name:            req.Name,
		HostName:        req.HostName,
		PackageTier:     models.PackageTier(req.PackageTier),
		InvitationImage: req.InvitationImage,
		InvitationText:  req.InvitationText,
		EventDate:       req.EventDate,
		EventTime:       req.EventTime,
		Location:        req.Location,
		MapLink:         req.MapLink,
	}
	if err := s.store.CreateEvent(c.Request.Context(), event); err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, event)
}

type createGuestRequest struct {
	Name              string `json:"name" binding:"required"`
	Phone             string `json:"phone" binding:"required"`
	AccompanyingCount int    `json:"accompanying_count"`
	InviteImage       string `json:"invite_image"`
}

func (s *Server) handleCreateGuest(c *gin.Context) {
	var req createGuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
		return
	}

	phone := invites.NormalizePhone(req.Phone, s.cfg.DefaultCountryCode)
	if phone == "" {
		writeError(c, http.StatusBadRequest, codeInvalidRequestBody, models.ErrInvalidPhone.Error())
		return
	}

	guest := &models.Guest{
		EventID:           c.Param("id"),
		Name:              req.Name,
		Phone:             phone,
		AccompanyingCount: req.AccompanyingCount,
		InviteImage:       req.InviteImage,
	}
	if err := s.store.CreateGuest(c.Request.Context(), guest); err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, guest)
}

func (s *Server) handleListGuests(c *gin.Context) {
	eventID := c.Param("id")

	if _, err := s.store.GetEvent(c.Request.Context(), eventID); err != nil {
		writeDomainError(c, err)
		return
	}

	guests, err := s.store.ListGuests(c.Request.Context(), eventID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if guests == nil {
		guests = []models.Guest{}
	}

	c.JSON(http.StatusOK, gin.H{"guests": guests})
}
