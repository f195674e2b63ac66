package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/lyricsflip/internal/game"
	"github.com/kiliankoe/lyricsflip/internal/lyrics"
)

type gameResponse struct {
	ID    string    `json:"id"`
	State game.View `json:"state"`
}

type selectRequest struct {
	Title  string `json:"title" binding:"required"`
	Artist string `json:"artist" binding:"required"`
	Index  int    `json:"index"`
}

type selectResponse struct {
	Accepted bool      `json:"accepted"`
	State    game.View `json:"state"`
}

func (s *Server) genres(c *gin.Context) {
	genres := []string{}
	if gl, ok := s.provider.(lyrics.GenreLister); ok {
		genres = gl.Genres()
	}
	c.JSON(http.StatusOK, gin.H{"genres": genres})
}

func (s *Server) defaults(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"config": s.opts.Defaults, "potWin": game.FormatPotWin(s.opts.Defaults)})
}

func (s *Server) createGame(c *gin.Context) {
	cfg, err := s.bindConfig(c)
	if err != nil {
		writeError(c, err)
		return
	}
	g, err := s.manager.CreateGame(c.Request.Context(), cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gameResponse{ID: g.ID, State: g.Controller.State().View()})
}

func (s *Server) getGame(c *gin.Context) {
	g, err := s.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gameResponse{ID: g.ID, State: g.Controller.State().View()})
}

func (s *Server) deleteGame(c *gin.Context) {
	if err := s.manager.Remove(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) selectOption(c *gin.Context) {
	g, err := s.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "invalid_request", Message: err.Error()})
		return
	}
	ok := g.Controller.SelectOption(lyrics.Option{Title: req.Title, Artist: req.Artist}, req.Index)
	c.JSON(http.StatusOK, selectResponse{Accepted: ok, State: g.Controller.State().View()})
}

func (s *Server) retryRound(c *gin.Context) {
	g, err := s.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := g.Controller.RetryRound(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gameResponse{ID: g.ID, State: g.Controller.State().View()})
}

func (s *Server) resetGame(c *gin.Context) {
	g, err := s.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	g.Controller.Reset()
	c.JSON(http.StatusOK, gameResponse{ID: g.ID, State: g.Controller.State().View()})
}

func (s *Server) restartGame(c *gin.Context) {
	g, err := s.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	cfg, err := s.bindConfig(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := g.Controller.RestartGame(c.Request.Context(), cfg); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gameResponse{ID: g.ID, State: g.Controller.State().View()})
}
