package gateway

// JoinQueueRequest admits a patient to a doctor's walk-in queue.
type JoinQueueRequest struct {
	DoctorID  int64 `json:"doctor_id,omitempty"`
	PatientID int64 `json:"patient_id"`
}

// QueueTicket is returned when a patient joins the queue.
type QueueTicket struct {
	Position      int    `json:"position"`
	EstimatedWait string `json:"estimated_wait"`
}

// QueueEntry is one waiting patient.
type QueueEntry struct {
	Position  int    `json:"position"`
	PatientID int64  `json:"patient_id"`
	Status    string `json:"status"`
}

// QueueStatus summarizes a doctor's queue.
type QueueStatus struct {
	TotalPatients     int          `json:"total_patients"`
	EstimatedWaitTime string       `json:"estimated_wait_time"`
	CurrentQueue      []QueueEntry `json:"current_queue"`
}

// BookSlotRequest reserves a slot for a patient.
type BookSlotRequest struct {
	SlotID    int64 `json:"slot_id"`
	PatientID int64 `json:"patient_id"`
}

// Booking is the API's acknowledgement of a reservation.
type Booking struct {
	AppointmentTime string `json:"appointment_time"`
	DoctorID        int64  `json:"doctor_id"`
}

type authRequest struct {
	NationalID string `json:"ssn"`
	Phone      string `json:"phone"`
}
