package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"lawfirm-server/internal/models"
	"lawfirm-server/internal/utils"
)

// CatalogHandler serves the priced reference data: appointment types and services.
type CatalogHandler struct {
	DB *gorm.DB
}

func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{DB: db}
}

// CatalogItemRequest creates an appointment type or a service. Price is in
// major currency units.
type CatalogItemRequest struct {
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description"`
	Price       int64  `json:"price" binding:"required,gt=0"`
}

func (h *CatalogHandler) ListAppointmentTypes(c *gin.Context) {
	types := []models.AppointmentType{}
	if err := h.DB.WithContext(c.Request.Context()).Order("price asc").Find(&types).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch appointment types")
		return
	}
	utils.Success(c, "Appointment types fetched successfully", types)
}

func (h *CatalogHandler) CreateAppointmentType(c *gin.Context) {
	var req CatalogItemRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	at := models.AppointmentType{Title: req.Title, Description: req.Description, Price: req.Price}
	if err := h.DB.WithContext(c.Request.Context()).Create(&at).Error; err != nil {
		utils.InternalServerError(c, "Failed to create appointment type")
		return
	}
	utils.Created(c, "Appointment type created successfully", at)
}

func (h *CatalogHandler) ListServices(c *gin.Context) {
	services := []models.Service{}
	if err := h.DB.WithContext(c.Request.Context()).Order("title asc").Find(&services).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch services")
		return
	}
	utils.Success(c, "Services fetched successfully", services)
}

func (h *CatalogHandler) CreateService(c *gin.Context) {
	var req CatalogItemRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	svc := models.Service{Title: req.Title, Description: req.Description, Price: req.Price}
	if err := h.DB.WithContext(c.Request.Context()).Create(&svc).Error; err != nil {
		utils.InternalServerError(c, "Failed to create service")
		return
	}
	utils.Created(c, "Service created successfully", svc)
}
