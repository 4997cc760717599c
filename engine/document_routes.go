package engine

import (
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/drummonds/pagerender/document"
	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

type pageInfo struct {
	Index    int     `json:"index"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation int     `json:"rotation"`
}

type documentInfo struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Size  string     `json:"size"`
	Pages []pageInfo `json:"pages"`
}

func describe(doc Document) documentInfo {
	src := doc.Source()
	info := documentInfo{
		ID:    src.ID,
		Name:  src.Name,
		Size:  humanize.Bytes(uint64(len(src.Data))),
		Pages: make([]pageInfo, 0, doc.PageCount()),
	}
	for _, page := range document.Pages(doc) {
		info.Pages = append(info.Pages, pageInfo{
			Index:    page.Handle().Index,
			Width:    page.Width(),
			Height:   page.Height(),
			Rotation: int(page.Rotation()),
		})
	}
	return info
}

// UploadDocument reads a PDF from the "file" form field and registers it
func (serverHandler *ServerHandler) UploadDocument(c echo.Context) error {
	file, fileHeader, err := c.Request().FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file field").SetInternal(err)
	}
	defer file.Close()

	limit := int64(serverHandler.ServerConfig.MaxUploadMB) << 20
	if limit > 0 && fileHeader.Size > limit {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload is %s, limit is %s", humanize.Bytes(uint64(fileHeader.Size)), humanize.Bytes(uint64(limit))))
	}
	body, err := io.ReadAll(file)
	if err != nil {
		Logger.Error("Unable to read uploaded file", "name", fileHeader.Filename, "error", err)
		return err
	}

	doc, err := document.OpenMemory(fileHeader.Filename, body)
	if err != nil {
		Logger.Warn("Rejected upload", "name", fileHeader.Filename, "error", err)
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error()).SetInternal(err)
	}
	serverHandler.AddDocument(doc)
	return c.JSON(http.StatusCreated, describe(doc))
}

// ListDocuments returns every registered document ordered by ID
func (serverHandler *ServerHandler) ListDocuments(c echo.Context) error {
	docs := make([]documentInfo, 0, serverHandler.documents.Size())
	serverHandler.documents.Range(func(_ string, doc Document) bool {
		docs = append(docs, describe(doc))
		return true
	})
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return c.JSON(http.StatusOK, docs)
}

// GetDocument returns the page geometry of one document
func (serverHandler *ServerHandler) GetDocument(c echo.Context) error {
	doc, err := serverHandler.lookupDocument(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, describe(doc))
}

// DeleteDocument forgets a document and drops its cached pages
func (serverHandler *ServerHandler) DeleteDocument(c echo.Context) error {
	doc, ok := serverHandler.documents.LoadAndDelete(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	for _, page := range document.Pages(doc) {
		serverHandler.Renderer.InvalidatePage(page)
	}
	Logger.Info("Removed document", "id", doc.Source().ID)
	return c.NoContent(http.StatusNoContent)
}

// InvalidateDocumentCache drops the cached renders of every page of a document
func (serverHandler *ServerHandler) InvalidateDocumentCache(c echo.Context) error {
	doc, err := serverHandler.lookupDocument(c)
	if err != nil {
		return err
	}
	for _, page := range document.Pages(doc) {
		serverHandler.Renderer.InvalidatePage(page)
	}
	return c.NoContent(http.StatusNoContent)
}
