package model

// SemanticType identifies what a detected field means on a property
// management page.
type SemanticType string

const (
	SemanticTenantName    SemanticType = "tenant_name"
	SemanticUnitNumber    SemanticType = "unit_number"
	SemanticRentAmount    SemanticType = "rent_amount"
	SemanticMarketRent    SemanticType = "market_rent"
	SemanticDepositAmount SemanticType = "deposit_amount"
	SemanticBalanceDue    SemanticType = "balance_due"
	SemanticPastDue       SemanticType = "past_due_amount"
	SemanticLateFee       SemanticType = "late_fee"
	SemanticLeaseStart    SemanticType = "lease_start"
	SemanticLeaseEnd      SemanticType = "lease_end"
	SemanticMoveInDate    SemanticType = "move_in_date"
	SemanticPropertyName  SemanticType = "property_name"
	SemanticSquareFootage SemanticType = "square_footage"
	SemanticOccupancyRate SemanticType = "occupancy_rate"
	SemanticUnknown       SemanticType = "unknown"
)

// AllSemanticTypes returns every defined semantic type.
func AllSemanticTypes() []SemanticType {
	return []SemanticType{
		SemanticTenantName,
		SemanticUnitNumber,
		SemanticRentAmount,
		SemanticMarketRent,
		SemanticDepositAmount,
		SemanticBalanceDue,
		SemanticPastDue,
		SemanticLateFee,
		SemanticLeaseStart,
		SemanticLeaseEnd,
		SemanticMoveInDate,
		SemanticPropertyName,
		SemanticSquareFootage,
		SemanticOccupancyRate,
		SemanticUnknown,
	}
}

// ValidSemanticType reports whether st is one of the defined semantic types.
func ValidSemanticType(st SemanticType) bool {
	for _, t := range AllSemanticTypes() {
		if t == st {
			return true
		}
	}
	return false
}

// DataType is the declared value type of a field.
type DataType string

const (
	DataTypeText       DataType = "text"
	DataTypeNumber     DataType = "number"
	DataTypeCurrency   DataType = "currency"
	DataTypeDate       DataType = "date"
	DataTypePercentage DataType = "percentage"
)

// ValidDataType reports whether dt is one of the defined data types.
func ValidDataType(dt DataType) bool {
	switch dt {
	case DataTypeText, DataTypeNumber, DataTypeCurrency, DataTypeDate, DataTypePercentage:
		return true
	}
	return false
}
