package controllers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-pdf/fpdf"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/utils"
)

// ExportController produces the hand-over documents: a CSV pen register and a
// PDF closure report per project.
type ExportController struct {
	DB *gorm.DB
}

func NewExportController(db *gorm.DB) *ExportController {
	return &ExportController{DB: db}
}

func (ec *ExportController) loadProjectPens(c *gin.Context) (*models.Project, []models.Penetration, bool) {
	var project models.Project
	if err := ec.DB.First(&project, c.Param("project_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return nil, nil, false
	}

	query := ec.DB.Preload("Contractor").Where("project_id = ?", project.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if contractorID := c.Query("contractor_id"); contractorID != "" {
		query = query.Where("contractor_id = ?", contractorID)
	}

	var pens []models.Penetration
	if err := query.Order("deck, pen_id").Find(&pens).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return nil, nil, false
	}
	return &project, pens, true
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

func contractorName(pen *models.Penetration) string {
	if pen.Contractor != nil {
		return pen.Contractor.Name
	}
	return ""
}

// ExportCSV streams the project's pen register as CSV.
func (ec *ExportController) ExportCSV(c *gin.Context) {
	project, pens, ok := ec.loadProjectPens(c)
	if !ok {
		return
	}

	filename := fmt.Sprintf("penlog_%s_%s.csv",
		project.ShipName, time.Now().UTC().Format("20060102"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	header := []string{
		"pen_id", "deck", "fire_zone", "frame", "location", "pen_type", "size",
		"contractor", "status", "priority", "opened_at", "completed_at", "notes",
	}
	if err := writer.Write(header); err != nil {
		utils.ErrorLogger.Printf("csv export aborted: %v", err)
		return
	}

	for _, pen := range pens {
		record := []string{
			pen.PenID,
			pen.Deck,
			pen.FireZone,
			pen.Frame,
			pen.Location,
			pen.PenType,
			pen.Size,
			contractorName(&pen),
			pen.Status,
			pen.Priority,
			formatTimePtr(pen.OpenedAt),
			formatTimePtr(pen.CompletedAt),
			pen.Notes,
		}
		if err := writer.Write(record); err != nil {
			utils.ErrorLogger.Printf("csv export aborted: %v", err)
			return
		}
	}
}

// ExportPDF renders the project's closure report as a PDF table.
func (ec *ExportController) ExportPDF(c *gin.Context) {
	project, pens, ok := ec.loadProjectPens(c)
	if !ok {
		return
	}

	statusCounts := map[string]int{}
	for _, pen := range pens {
		statusCounts[pen.Status]++
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Penetration Closure Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Penetration Closure Report")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Ship: %s    Project: %s", project.ShipName, project.Name))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Drydock: %s    Generated: %s",
		project.DrydockLocation, time.Now().UTC().Format("2006-01-02 15:04 UTC")))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Total: %d    Not started: %d    Open: %d    Closed: %d    Verified: %d",
		len(pens),
		statusCounts[models.StatusNotStarted],
		statusCounts[models.StatusOpen],
		statusCounts[models.StatusClosed],
		statusCounts[models.StatusVerified]))
	pdf.Ln(10)

	type column struct {
		title string
		width float64
	}
	columns := []column{
		{"Pen ID", 25},
		{"Deck", 20},
		{"Zone", 15},
		{"Location", 60},
		{"Type", 30},
		{"Contractor", 45},
		{"Status", 25},
		{"Completed", 35},
	}

	writeHeader := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, col := range columns {
			pdf.CellFormat(col.width, 7, col.title, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}
	writeHeader()

	for _, pen := range pens {
		if pdf.GetY() > 180 {
			pdf.AddPage()
			writeHeader()
		}
		row := []string{
			pen.PenID,
			pen.Deck,
			pen.FireZone,
			pen.Location,
			pen.PenType,
			contractorName(&pen),
			pen.Status,
			formatTimePtr(pen.CompletedAt),
		}
		for i, col := range columns {
			pdf.CellFormat(col.width, 6, row[i], "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	filename := fmt.Sprintf("penlog_%s_%s.pdf",
		project.ShipName, time.Now().UTC().Format("20060102"))
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if err := pdf.Output(c.Writer); err != nil {
		utils.ErrorLogger.Printf("pdf export failed: %v", err)
	}
}
