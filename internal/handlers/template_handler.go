package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"dataload-service/internal/dataload"
	"dataload-service/internal/models"
)

type TemplateHandler struct{}

func NewTemplateHandler() *TemplateHandler {
	return &TemplateHandler{}
}

// GetTemplate returns the column contract of a load type, or a file to fill in
// @Summary Get load type template
// @Tags Dataload
// @Produce json,text/csv,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param loadType path string true "category, brand, attribute, return_policy, product, product_item, product_price or meta_tag"
// @Param format query string false "json, csv or xlsx" default(json)
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /dataload/templates/{loadType} [get]
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	loadType, ok := models.ParseLoadType(c.Param("loadType"))
	if !ok {
		errorJSON(c, http.StatusBadRequest, "INVALID_LOAD_TYPE", fmt.Sprintf("unknown load type %q", c.Param("loadType")))
		return
	}
	schema, err := dataload.SchemaFor(loadType)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "INVALID_LOAD_TYPE", err.Error())
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "csv":
		h.generateCSVTemplate(c, schema)
	case "xlsx":
		h.generateXLSXTemplate(c, schema)
	default:
		c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: schema})
	}
}

func headerText(col dataload.Column) string {
	if col.Required {
		return col.Name + " *"
	}
	return col.Name
}

// generateCSVTemplate writes the header row and one example row
func (h *TemplateHandler) generateCSVTemplate(c *gin.Context, schema *dataload.Schema) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_template.csv", schema.LoadType))
	c.Status(http.StatusOK)

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(schema.Columns))
	example := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		headers[i] = headerText(col)
		example[i] = col.Example
	}
	writer.Write(headers)
	writer.Write(example)
}

// generateXLSXTemplate writes a data sheet plus an Instructions sheet
func (h *TemplateHandler) generateXLSXTemplate(c *gin.Context, schema *dataload.Schema) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Data"
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range schema.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, headerText(col))
		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}

		exampleCell, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellStr(sheetName, exampleCell, col.Example)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 22)
	}

	f.NewSheet("Instructions")
	f.SetCellValue("Instructions", "A1", fmt.Sprintf("%s load instructions", schema.LoadType))
	f.SetCellValue("Instructions", "A3", "LOAD ORDER:")
	for i, lt := range models.LoadTypes {
		f.SetCellValue("Instructions", fmt.Sprintf("A%d", 4+i), fmt.Sprintf("%d. %s", i+1, lt))
	}
	row := 5 + len(models.LoadTypes)
	f.SetCellValue("Instructions", fmt.Sprintf("A%d", row), "Multi-valued columns use | between elements; keep aligned columns the same length.")
	f.SetCellValue("Instructions", fmt.Sprintf("A%d", row+1), "Booleans are TRUE or FALSE. Columns marked * are required.")

	row += 3
	f.SetCellValue("Instructions", fmt.Sprintf("A%d", row), "Column")
	f.SetCellValue("Instructions", fmt.Sprintf("B%d", row), "Description")
	f.SetCellValue("Instructions", fmt.Sprintf("C%d", row), "Required")
	f.SetCellValue("Instructions", fmt.Sprintf("D%d", row), "Type")
	f.SetCellValue("Instructions", fmt.Sprintf("E%d", row), "Example")
	for i, col := range schema.Columns {
		r := row + 1 + i
		f.SetCellValue("Instructions", fmt.Sprintf("A%d", r), col.Name)
		f.SetCellValue("Instructions", fmt.Sprintf("B%d", r), col.Description)
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue("Instructions", fmt.Sprintf("C%d", r), required)
		f.SetCellValue("Instructions", fmt.Sprintf("D%d", r), col.Type)
		f.SetCellStr("Instructions", fmt.Sprintf("E%d", r), col.Example)
	}

	f.SetColWidth("Instructions", "A", "A", 25)
	f.SetColWidth("Instructions", "B", "B", 60)
	f.SetColWidth("Instructions", "C", "C", 15)
	f.SetColWidth("Instructions", "D", "D", 15)
	f.SetColWidth("Instructions", "E", "E", 40)

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_template.xlsx", schema.LoadType))
	c.Status(http.StatusOK)
	f.Write(c.Writer)
}
