package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"devicefarm-server/internal/model"
	"devicefarm-server/internal/store"
	"devicefarm-server/internal/upload"
)

type MaterialHandler struct {
	Store   *store.Store
	Uploads *upload.Dir
}

func materialFilter(c *gin.Context) (model.MaterialFilter, bool) {
	used, valid := optionalInt(c, "used")
	if !valid {
		return model.MaterialFilter{}, false
	}
	groupID, valid := optionalInt64(c, "group_id")
	if !valid {
		return model.MaterialFilter{}, false
	}
	return model.MaterialFilter{Used: used, GroupID: groupID}, true
}

// List filters by used and group_id, or returns one material when an id is
// given.
func (h *MaterialHandler) List(c *gin.Context) {
	if c.Query("id") != "" {
		id, present := queryID(c)
		if !present {
			return
		}
		m, err := h.Store.GetMaterial(c.Request.Context(), id)
		if err != nil {
			storeError(c, err)
			return
		}
		ok(c, m)
		return
	}
	f, valid := materialFilter(c)
	if !valid {
		return
	}
	materials, err := h.Store.ListMaterials(c.Request.Context(), f)
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, materials)
}

func (h *MaterialHandler) Count(c *gin.Context) {
	f, valid := materialFilter(c)
	if !valid {
		return
	}
	n, err := h.Store.CountMaterials(c.Request.Context(), f)
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, n)
}

// Upload stores every file of the multipart form ("files", or "file" for a
// single one) and records them in the optional group_id form field's group.
func (h *MaterialHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "Invalid multipart form")
		return
	}
	files := append(form.File["files"], form.File["file"]...)
	if len(files) == 0 {
		badRequest(c, "No files uploaded")
		return
	}

	var groupID *int64
	if raw := c.PostForm("group_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "Invalid group_id")
			return
		}
		groupID = &v
	}

	// Files this request added; they go again if the request fails.
	var written []string
	committed := false
	defer func() {
		if committed {
			return
		}
		for _, name := range written {
			if err := h.Uploads.Remove(name); err != nil {
				log.Printf("material: cleanup %s: %v", name, err)
			}
		}
	}()

	materials := make([]model.Material, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "Unreadable upload "+fh.Filename)
			return
		}
		saved, err := h.Uploads.SaveMaterial(f, fh.Filename)
		_ = f.Close()
		if err != nil {
			log.Printf("material: save %s: %v", fh.Filename, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
			return
		}
		if saved.Created {
			written = append(written, saved.Name)
		}
		materials = append(materials, model.Material{GroupID: groupID, Name: saved.Name, MD5: saved.MD5})
	}

	ids, err := h.Store.SaveMaterials(c.Request.Context(), materials)
	if err != nil {
		storeError(c, err)
		return
	}
	committed = true
	for i := range materials {
		materials[i].ID = ids[i]
	}
	ok(c, materials)
}

type materialUsedBody struct {
	Name string `json:"name"`
	Used *int   `json:"used"`
}

func (h *MaterialHandler) UpdateUsed(c *gin.Context) {
	var body materialUsedBody
	if !bindJSON(c, &body) {
		return
	}
	if body.Name == "" || body.Used == nil {
		badRequest(c, "name and used are required")
		return
	}
	if err := h.Store.UpdateMaterialUsed(c.Request.Context(), body.Name, *body.Used); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MaterialHandler) Delete(c *gin.Context) {
	id, present := queryID(c)
	if !present {
		return
	}
	if err := h.Store.DeleteMaterial(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
