package entities

// Department identifies a hospital queue line
type Department string

const (
	DepartmentOPD         Department = "OPD"
	DepartmentPharmacy    Department = "Pharmacy"
	DepartmentAppointment Department = "Appointment"
)

// Departments lists every known department in ascending order
func Departments() []Department {
	return []Department{DepartmentAppointment, DepartmentOPD, DepartmentPharmacy}
}

// Valid reports whether the department is one of the known queue lines
func (d Department) Valid() bool {
	switch d {
	case DepartmentOPD, DepartmentPharmacy, DepartmentAppointment:
		return true
	}
	return false
}
