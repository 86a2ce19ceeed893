package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mongoscan/internal/apis/dtos"
	"mongoscan/internal/services"
)

type TableHandler struct {
	tableService services.TableService
}

func NewTableHandler(tableService services.TableService) *TableHandler {
	return &TableHandler{tableService: tableService}
}

// @Summary List tables
// @Description List the tables of the catalog
// @Produce json
// @Success 200 {object} dtos.Response
func (h *TableHandler) List(c *gin.Context) {
	response, statusCode, err := h.tableService.ListTables()
	respond(c, response, statusCode, err)
}

// @Summary Get table schema
// @Description Infer or return the cached schema of a table
// @Produce json
// @Param name path string true "Table name"
// @Success 200 {object} dtos.Response
func (h *TableHandler) GetSchema(c *gin.Context) {
	response, statusCode, err := h.tableService.GetSchema(c.Request.Context(), c.Param("name"))
	respond(c, response, statusCode, err)
}

// @Summary Refresh table schema
// @Description Drop the cached schema of a table and infer it again
// @Produce json
// @Param name path string true "Table name"
// @Success 200 {object} dtos.Response
func (h *TableHandler) RefreshSchema(c *gin.Context) {
	response, statusCode, err := h.tableService.RefreshSchema(c.Request.Context(), c.Param("name"))
	respond(c, response, statusCode, err)
}

// @Summary Scan a table
// @Description Read rows, pushing the predicate down when the store can enforce it
// @Accept json
// @Produce json
// @Param name path string true "Table name"
// @Param scanRequest body dtos.ScanRequest false "Scan request"
// @Success 200 {object} dtos.Response
func (h *TableHandler) Scan(c *gin.Context) {
	var req dtos.ScanRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	response, statusCode, err := h.tableService.Scan(c.Request.Context(), c.Param("name"), &req)
	respond(c, response, statusCode, err)
}

// @Summary Count table rows
// @Accept json
// @Produce json
// @Param name path string true "Table name"
// @Param countRequest body dtos.CountRequest false "Count request"
// @Success 200 {object} dtos.Response
func (h *TableHandler) Count(c *gin.Context) {
	var req dtos.CountRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	response, statusCode, err := h.tableService.Count(c.Request.Context(), c.Param("name"), &req)
	respond(c, response, statusCode, err)
}

// @Summary List connection pools
// @Produce json
// @Success 200 {object} dtos.Response
func (h *TableHandler) ListPools(c *gin.Context) {
	response, statusCode, err := h.tableService.ListPools()
	respond(c, response, statusCode, err)
}

// @Summary Reconnect all pools
// @Description Close idle connections and retire checked-out ones on release
// @Produce json
// @Success 200 {object} dtos.Response
func (h *TableHandler) ReconnectPools(c *gin.Context) {
	response, statusCode, err := h.tableService.ReconnectPools()
	respond(c, response, statusCode, err)
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		errorMsg := err.Error()
		c.JSON(http.StatusBadRequest, dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return false
	}
	return true
}

func respond(c *gin.Context, data interface{}, statusCode uint32, err error) {
	if err != nil {
		errorMsg := err.Error()
		c.JSON(int(statusCode), dtos.Response{
			Success: false,
			Error:   &errorMsg,
		})
		return
	}

	c.JSON(int(statusCode), dtos.Response{
		Success: true,
		Data:    data,
	})
}
