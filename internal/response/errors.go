package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidOption  ErrCode = "INVALID_OPTION"
	ErrUnknownSignal  ErrCode = "UNKNOWN_SIGNAL"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session ───────────────────────────────────────────────────────
	ErrSessionUnavailable   ErrCode = "SESSION_UNAVAILABLE"
	ErrSessionNotMounted    ErrCode = "SESSION_NOT_MOUNTED"
	ErrSessionNotActive     ErrCode = "SESSION_NOT_ACTIVE"
	ErrExamNotFound         ErrCode = "EXAM_NOT_FOUND"
	ErrNoQuestions          ErrCode = "NO_QUESTIONS"
	ErrQuestionNotInExam    ErrCode = "QUESTION_NOT_IN_EXAM"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrSubmitInProgress     ErrCode = "SUBMIT_IN_PROGRESS"
	ErrConfirmationRequired ErrCode = "CONFIRMATION_REQUIRED"
	ErrResponsesNotRecorded ErrCode = "RESPONSES_NOT_RECORDED"
	ErrSubmissionFailed     ErrCode = "SUBMISSION_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrInvalidOption:
		return "Pilihan jawaban tidak valid."
	case ErrUnknownSignal:
		return "Jenis sinyal tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrSessionUnavailable:
		return "Sesi ujian tidak dapat dimulai. Silakan muat ulang halaman."
	case ErrSessionNotMounted:
		return "Sesi ujian belum dibuka."
	case ErrSessionNotActive:
		return "Sesi ujian tidak aktif."
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrNoQuestions:
		return "Ujian ini tidak memiliki pertanyaan."
	case ErrQuestionNotInExam:
		return "Soal tidak termasuk dalam ujian ini."
	case ErrAlreadySubmitted:
		return "Ujian ini sudah dikumpulkan."
	case ErrSubmitInProgress:
		return "Pengumpulan ujian sedang diproses."
	case ErrConfirmationRequired:
		return "Konfirmasi diperlukan sebelum mengumpulkan ujian."
	case ErrResponsesNotRecorded:
		return "Jawaban Anda tidak tersimpan. Segera hubungi pengawas."
	case ErrSubmissionFailed:
		return "Pengumpulan ujian gagal. Silakan hubungi pengawas atau admin."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
