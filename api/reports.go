package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bpsreport/report-server/globals"
	"github.com/bpsreport/report-server/persistence"
	"github.com/bpsreport/report-server/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// The automated acknowledgement appended to every new report. Text and
// persona are part of the client contract.
const (
	autoReplyMessage = "Admin Kami akan membalasa Pesan mu Silahkan Menunggu"
	autoReplyName    = "Bacardi Asisten"
	autoReplyAvatar  = "./img/bacardiai.png"
)

// createReport persists a new report whose first response is the complaint
// itself, appends the automated acknowledgement, then notifies everyone: a
// global new-report event for dashboards and a new-message event into the
// fresh report's room carrying the acknowledgement.
func (s *Server) createReport(w http.ResponseWriter, r *http.Request) {
	input := types.CreateReport{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	report := types.Report{
		Id:        uuid.NewString(),
		GrowId:    input.GrowId,
		Category:  input.Category,
		Complaint: input.Complaint,
		Status:    types.StatusPending,
		CreatedAt: now,
		Responses: []types.Response{{
			Message:   input.Complaint,
			IsAdmin:   false,
			CreatedAt: now,
			Read:      false,
		}},
	}
	if err := s.persister.StoreReport(report); err != nil {
		globals.AppLogger.Error("could not create report", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create report")
		return
	}

	autoReply := types.Response{
		Message:     autoReplyMessage,
		IsAdmin:     true,
		AdminName:   autoReplyName,
		AdminAvatar: autoReplyAvatar,
		CreatedAt:   time.Now(),
		Read:        false,
	}
	if err := s.persister.AppendResponse(report.Id, autoReply); err != nil {
		globals.AppLogger.Error("could not append acknowledgement", "report", report.Id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create report")
		return
	}
	report.Responses = append(report.Responses, autoReply)

	s.hub.BroadcastEvent(types.EventNewReport, report)
	s.hub.RoomEvent(report.Id, types.EventNewMessage, types.NewMessage{
		Response: autoReply,
		ReportId: report.Id,
	})

	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.persister.GetReports()
	if err != nil {
		globals.AppLogger.Error("could not list reports", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	report, err := s.persister.GetReport(id)
	if err == persistence.ErrNotFound {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		globals.AppLogger.Error("could not get report", "report", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// respondReport appends an administrator response over the same atomic append
// path the chat uses, so HTTP responses and live messages cannot lose each
// other.
func (s *Server) respondReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	input := types.RespondReport{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	response := types.Response{
		Message:   input.Message,
		IsAdmin:   true,
		CreatedAt: time.Now(),
		Read:      false,
	}
	err := s.persister.AppendResponse(id, response)
	if err == persistence.ErrNotFound {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		globals.AppLogger.Error("could not append response", "report", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to append response")
		return
	}

	s.hub.RoomEvent(id, types.EventNewMessage, types.NewMessage{
		Response: response,
		ReportId: id,
	})

	report, err := s.persister.GetReport(id)
	if err != nil {
		globals.AppLogger.Error("could not reload report", "report", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) closeReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.removeReport(w, id) {
		return
	}
	s.hub.BroadcastEvent(types.EventReportClosed, types.ReportRef{ReportId: id})
	writeJSON(w, http.StatusOK, map[string]string{"message": "report closed and deleted"})
}

func (s *Server) deleteReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.removeReport(w, id) {
		return
	}
	s.hub.BroadcastEvent(types.EventChatDeleted, types.ReportRef{ReportId: id})
	writeJSON(w, http.StatusOK, map[string]string{"message": "report deleted successfully"})
}

// removeReport purges the report's uploaded images and deletes the record.
// Deletion is permanent, there is no soft delete. It writes the error
// response itself and reports whether the caller should continue.
func (s *Server) removeReport(w http.ResponseWriter, id string) bool {
	report, err := s.persister.GetReport(id)
	if err == persistence.ErrNotFound {
		writeError(w, http.StatusNotFound, "report not found")
		return false
	}
	if err != nil {
		globals.AppLogger.Error("could not load report", "report", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	s.uploads.RemoveReportImages(report)
	if err := s.persister.DeleteReport(id); err != nil {
		globals.AppLogger.Error("could not delete report", "report", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete report")
		return false
	}
	return true
}
