package model

// BookingStatus は予約（問い合わせ）の対応状況を表す。
type BookingStatus string

const (
	// BookingStatusNew は受付直後の状態。作成時は常にこの値になる。
	BookingStatusNew BookingStatus = "New"
	// BookingStatusContacted は顧客に連絡済みの状態。
	BookingStatusContacted BookingStatus = "Contacted"
	// BookingStatusBooked は予約確定の状態。
	BookingStatusBooked BookingStatus = "Booked"
	// BookingStatusCancelled はキャンセル済みの状態。
	BookingStatusCancelled BookingStatus = "Cancelled"
)

// Valid は定義済みのステータスかどうかを返す。
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusNew, BookingStatusContacted, BookingStatusBooked, BookingStatusCancelled:
		return true
	}
	return false
}
