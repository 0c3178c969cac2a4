// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kernelci/logparser/pkg/build"
	"github.com/kernelci/logparser/pkg/logging"
	"github.com/kernelci/logparser/pkg/logparser"
	"github.com/kernelci/logparser/pkg/storage"
	"github.com/kernelci/logparser/pkg/taskqueue"
)

// Reader gives access to the stored parsing results.
type Reader interface {
	FindSummary(ctx context.Context, job, kernel string) (*logparser.ErrorSummary, error)
	FindErrorLog(ctx context.Context, buildID primitive.ObjectID) (*logparser.ErrorLog, error)
}

type RouteHandler struct {
	queue  taskqueue.Queue
	reader Reader
}

// parseRequest is the body of the parse endpoints.
type parseRequest struct {
	JobID  string `json:"job_id"`
	Job    string `json:"job"`
	Kernel string `json:"kernel"`
}

// status is a simple endpoint to check if the serves is alive
func (r *RouteHandler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "live"})
}

func (r *RouteHandler) enqueue(c *gin.Context, t taskqueue.Task) {
	t.ID = uuid.NewString()
	err := r.queue.Enqueue(c.Request.Context(), t)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "task_id": t.ID})
	case errors.Is(err, taskqueue.ErrQueueFull), errors.Is(err, taskqueue.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "err", "msg": "task queue unavailable"})
	default:
		logging.Errorf(c.Request.Context(), "Could not enqueue %s: %v", t, err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "err", "msg": "could not enqueue task"})
	}
}

func bindOptional(c *gin.Context, req *parseRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "err", "msg": "bad formatted request"})
		return false
	}
	return true
}

// parseBuildLogs queues the parsing of every build of a job/kernel.
func (r *RouteHandler) parseBuildLogs(c *gin.Context) {
	var req parseRequest
	if !bindOptional(c, &req) {
		return
	}
	if _, err := primitive.ObjectIDFromHex(req.JobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "err", "msg": "invalid or missing job_id"})
		return
	}
	if !build.ValidName(req.Job) || !build.ValidName(req.Kernel) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "err", "msg": "invalid job or kernel name"})
		return
	}
	r.enqueue(c, taskqueue.Task{Name: taskqueue.ParseBuildLog, JobID: req.JobID, Job: req.Job, Kernel: req.Kernel})
}

// parseSingleBuildLog queues the parsing of one stored build.
func (r *RouteHandler) parseSingleBuildLog(c *gin.Context) {
	buildID := c.Param("build_id")
	if _, err := primitive.ObjectIDFromHex(buildID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "err", "msg": "invalid build id"})
		return
	}
	var req parseRequest
	if !bindOptional(c, &req) {
		return
	}
	if req.JobID != "" {
		if _, err := primitive.ObjectIDFromHex(req.JobID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "err", "msg": "invalid job_id"})
			return
		}
	}
	r.enqueue(c, taskqueue.Task{Name: taskqueue.ParseSingleBuildLog, BuildID: buildID, JobID: req.JobID, Job: req.Job, Kernel: req.Kernel})
}

// createLogsSummary queues the writing of the logs summary file.
func (r *RouteHandler) createLogsSummary(c *gin.Context) {
	var req parseRequest
	if !bindOptional(c, &req) {
		return
	}
	if !build.ValidName(req.Job) || !build.ValidName(req.Kernel) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "err", "msg": "invalid job or kernel name"})
		return
	}
	r.enqueue(c, taskqueue.Task{Name: taskqueue.CreateLogsSummary, Job: req.Job, Kernel: req.Kernel})
}

func (r *RouteHandler) getSummary(c *gin.Context) {
	job, kernel := c.Query("job"), c.Query("kernel")
	if job == "" || kernel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "err", "msg": "job and kernel are required"})
		return
	}
	s, err := r.reader.FindSummary(c.Request.Context(), job, kernel)
	r.respond(c, s, err)
}

func (r *RouteHandler) getErrorLog(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("build_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "err", "msg": "invalid build id"})
		return
	}
	e, err := r.reader.FindErrorLog(c.Request.Context(), id)
	r.respond(c, e, err)
}

func (r *RouteHandler) respond(c *gin.Context, doc any, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, doc)
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "err", "msg": "not found"})
	default:
		logging.Errorf(c.Request.Context(), "Query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "err", "msg": "error querying the database"})
	}
}

func initRouter(ctx context.Context, rh RouteHandler, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		// handlers log through the server logger
		c.Request = c.Request.WithContext(logger.CtxWithLogger(c.Request.Context(), logger.FromCtx(ctx)))
		c.Next()
	})

	r.GET("/status", rh.status)
	if rh.queue != nil {
		r.POST("/build/logs", rh.parseBuildLogs)
		r.POST("/build/logs/summary", rh.createLogsSummary)
		r.POST("/build/:build_id/logs", rh.parseSingleBuildLog)
	}
	if rh.reader != nil {
		r.GET("/errors/summary", rh.getSummary)
		r.GET("/errors/logs/:build_id", rh.getErrorLog)
	}
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}
