package api

// Feste Meldungen für Clients. Fehlerdetails landen nur im Log.
// Fehler werden immer als {"error": "..."} ausgeliefert, Erfolgsmeldungen als {"message": "..."}.
const (
	msgNotFound       = "dessert not found"
	msgListFailed     = "error fetching desserts"
	msgGetFailed      = "error fetching dessert"
	msgCreateFailed   = "error creating dessert"
	msgUpdateFailed   = "error updating dessert"
	msgDeleteFailed   = "error deleting dessert"
	msgDeleted        = "dessert deleted"
	msgUploadTooLarge = "uploaded file is too large"
	msgImageNotFound  = "image not found"
	msgInternal       = "internal server error"
	msgDBUnavailable  = "database unavailable"
)
