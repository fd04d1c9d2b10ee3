package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/railguard-simulator/core"
	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
	"github.com/signalsfoundry/railguard-simulator/model"
)

type pathResponse struct {
	StartNode     string          `json:"start_node"`
	EndNode       string          `json:"end_node"`
	OptimalPath   []string        `json:"optimal_path"`
	TotalTimeMins *float64        `json:"total_time_mins,omitempty"`
	DistanceKm    *float64        `json:"distance_km,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Blocked       []model.Segment `json:"blocked_tracks_at_moment"`
	Cached        bool            `json:"cached"`
}

type occupancyBody struct {
	OccupiedTracks []model.Segment `json:"occupied_tracks"`
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.fleet.Snapshot())
}

func (s *Server) addTrain(c *gin.Context) {
	ctx, log := requestLogger(c, s.log)

	var req model.TrainRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	train, err := s.fleet.AddTrain(req.Spec())
	if err != nil {
		log.Warn(ctx, "add train rejected", logging.Err(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "train_id": train.ID, "train": train})
}

func (s *Server) getTrain(c *gin.Context) {
	train, err := s.fleet.Train(c.Param("id"))
	if errors.Is(err, state.ErrTrainNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, train)
}

func (s *Server) dispatchTrain(c *gin.Context) {
	id := c.Param("id")
	changed, err := s.fleet.SetDispatched(id)
	if errors.Is(err, state.ErrTrainNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if changed {
		ctx, log := requestLogger(c, s.log)
		log.Info(ctx, "train dispatched", logging.TrainID(id))
	}
	c.JSON(http.StatusOK, gin.H{"train_id": id, "dispatched": true, "changed": changed})
}

func (s *Server) getPath(c *gin.Context) {
	answer := s.routes.FindRoute(c.Request.Context(), c.Param("start"), c.Param("end"))

	resp := pathResponse{
		StartNode: answer.Start,
		EndNode:   answer.End,
		Blocked:   answer.Blocked,
		Cached:    answer.Cached,
	}
	if answer.Route != nil {
		resp.OptimalPath = answer.Route.Nodes
		resp.TotalTimeMins = &answer.Route.TotalTimeMins
		resp.DistanceKm = &answer.Route.DistanceKm
	} else if answer.Err != nil {
		resp.Reason = reason(answer.Err)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getTrack(c *gin.Context) {
	network, occupied := s.routes.Track()
	c.JSON(http.StatusOK, gin.H{
		"nodes":           network.Nodes,
		"edges":           network.Edges,
		"occupied_tracks": occupied,
		"blocked_cost":    core.BlockedCost,
	})
}

func (s *Server) getOccupancy(c *gin.Context) {
	c.JSON(http.StatusOK, occupancyBody{OccupiedTracks: s.board.OccupiedTracks()})
}

func (s *Server) replaceOccupancy(c *gin.Context) {
	var body occupancyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.board.Replace(body.OccupiedTracks); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, log := requestLogger(c, s.log)
	log.Info(ctx, "occupancy replaced", logging.Int("segments", len(body.OccupiedTracks)))
	c.JSON(http.StatusOK, occupancyBody{OccupiedTracks: s.board.OccupiedTracks()})
}

func (s *Server) blockSegment(c *gin.Context) {
	var seg model.Segment
	if err := c.ShouldBindJSON(&seg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	added, err := s.board.Block(seg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "occupied_tracks": s.board.OccupiedTracks()})
}

func (s *Server) releaseSegment(c *gin.Context) {
	released := s.board.Release(model.Segment{A: c.Param("a"), B: c.Param("b")})
	c.JSON(http.StatusOK, gin.H{"released": released, "occupied_tracks": s.board.OccupiedTracks()})
}

func reason(err error) string {
	switch {
	case errors.Is(err, core.ErrUnknownNode):
		return "unknown node"
	case errors.Is(err, core.ErrRouteBlocked):
		return "all routes cross occupied track"
	default:
		return "no route found"
	}
}
