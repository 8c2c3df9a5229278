package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/hub"
	"devicefarm-server/internal/model"
	"devicefarm-server/internal/store"
)

// jobFilter reads the optional status, group_id and account_id query
// parameters shared by both job count endpoints.
func jobFilter(c *gin.Context) (model.JobFilter, bool) {
	var f model.JobFilter
	if raw := c.Query("status"); raw != "" {
		st, err := model.ParseJobStatus(raw)
		if err != nil {
			badRequest(c, err.Error())
			return f, false
		}
		f.Status = &st
	}
	var valid bool
	if f.GroupID, valid = optionalInt64(c, "group_id"); !valid {
		return f, false
	}
	if f.AccountID, valid = optionalInt64(c, "account_id"); !valid {
		return f, false
	}
	return f, true
}

type PublishJobHandler struct {
	Store *store.Store
	Hub   *hub.Hub
}

func (h *PublishJobHandler) List(c *gin.Context) {
	jobs, err := h.Store.ListPublishJobs(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, jobs)
}

// Create records the job and consumes its material.
func (h *PublishJobHandler) Create(c *gin.Context) {
	var body model.PublishJob
	if !bindJSON(c, &body) {
		return
	}
	id, err := h.Store.CreatePublishJob(c.Request.Context(), body)
	if err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicPublishJob, gin.H{"action": "created", "id": id})
	created(c, id)
}

func (h *PublishJobHandler) Update(c *gin.Context) {
	var body model.PublishJob
	if !bindJSON(c, &body) {
		return
	}
	if err := h.Store.UpdatePublishJob(c.Request.Context(), body); err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicPublishJob, gin.H{"action": "updated", "id": body.ID, "status": body.Status})
	c.Status(http.StatusNoContent)
}

func (h *PublishJobHandler) Delete(c *gin.Context) {
	id, present := queryID(c)
	if !present {
		return
	}
	if err := h.Store.DeletePublishJob(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicPublishJob, gin.H{"action": "deleted", "id": id})
	c.Status(http.StatusNoContent)
}

func (h *PublishJobHandler) Runnable(c *gin.Context) {
	agentIP, present := requiredQuery(c, "agent_ip")
	if !present {
		return
	}
	jobs, err := h.Store.ListRunnablePublishJobs(c.Request.Context(), agentIP)
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, jobs)
}

func (h *PublishJobHandler) Count(c *gin.Context) {
	f, valid := jobFilter(c)
	if !valid {
		return
	}
	n, err := h.Store.CountPublishJobs(c.Request.Context(), f)
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, n)
}

func (h *PublishJobHandler) StatusCount(c *gin.Context) {
	counts, err := h.Store.CountPublishJobsByStatus(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, counts)
}

func (h *PublishJobHandler) Retry(c *gin.Context) {
	n, err := h.Store.RetryFailedPublishJobs(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicPublishJob, gin.H{"action": "retried", "count": n})
	ok(c, n)
}

func (h *PublishJobHandler) DeleteAll(c *gin.Context) {
	if err := h.Store.DeleteAllPublishJobs(c.Request.Context()); err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicPublishJob, gin.H{"action": "cleared"})
	c.Status(http.StatusNoContent)
}

type TrainJobHandler struct {
	Store *store.Store
	Hub   *hub.Hub
}

func (h *TrainJobHandler) List(c *gin.Context) {
	jobs, err := h.Store.ListTrainJobs(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, jobs)
}

func (h *TrainJobHandler) Create(c *gin.Context) {
	var body model.TrainJob
	if !bindJSON(c, &body) {
		return
	}
	id, err := h.Store.SaveTrainJob(c.Request.Context(), body)
	if err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicTrainJob, gin.H{"action": "created", "id": id})
	created(c, id)
}

func (h *TrainJobHandler) Update(c *gin.Context) {
	var body model.TrainJob
	if !bindJSON(c, &body) {
		return
	}
	if err := h.Store.UpdateTrainJob(c.Request.Context(), body); err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicTrainJob, gin.H{"action": "updated", "id": body.ID, "status": body.Status})
	c.Status(http.StatusNoContent)
}

func (h *TrainJobHandler) Delete(c *gin.Context) {
	id, present := queryID(c)
	if !present {
		return
	}
	if err := h.Store.DeleteTrainJob(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicTrainJob, gin.H{"action": "deleted", "id": id})
	c.Status(http.StatusNoContent)
}

func (h *TrainJobHandler) Runnable(c *gin.Context) {
	agentIP, present := requiredQuery(c, "agent_ip")
	if !present {
		return
	}
	jobs, err := h.Store.ListRunnableTrainJobs(c.Request.Context(), agentIP)
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, jobs)
}

func (h *TrainJobHandler) Count(c *gin.Context) {
	f, valid := jobFilter(c)
	if !valid {
		return
	}
	n, err := h.Store.CountTrainJobs(c.Request.Context(), f)
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, n)
}

func (h *TrainJobHandler) StatusCount(c *gin.Context) {
	counts, err := h.Store.CountTrainJobsByStatus(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, counts)
}

func (h *TrainJobHandler) Retry(c *gin.Context) {
	n, err := h.Store.RetryFailedTrainJobs(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicTrainJob, gin.H{"action": "retried", "count": n})
	ok(c, n)
}

func (h *TrainJobHandler) DeleteAll(c *gin.Context) {
	if err := h.Store.DeleteAllTrainJobs(c.Request.Context()); err != nil {
		storeError(c, err)
		return
	}
	h.Hub.Publish(hub.TopicTrainJob, gin.H{"action": "cleared"})
	c.Status(http.StatusNoContent)
}
