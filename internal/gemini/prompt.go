package gemini

// ExtractionInstruction is the fixed prompt sent with every file. The model
// must answer with bare JSON matching the unified invoice schema; nulls mark
// missing values and are stripped before validation.
const ExtractionInstruction = `Analyze this file and extract invoice/receipt information. Return ONLY a JSON object with these exact fields (use null for missing values):

{
  "invoice_number": "string or null",
  "invoice_date": "YYYY-MM-DD format or null",
  "supplier_name": "string or null",
  "supplier_ruc": "11-digit RUC number or null",
  "customer_name": "string or null",
  "customer_ruc": "11-digit RUC number or null",
  "items": [
    {
      "description": "item description or null",
      "quantity": "numeric quantity or null",
      "unit_price": "numeric unit price or null",
      "total_price": "numeric total price or null",
      "unit": "measurement unit (unidad/kg/metro/etc) or null"
    }
  ],
  "subtotal": "numeric value or null",
  "tax": "numeric tax amount or null",
  "total": "numeric total amount or null",
  "currency": "PEN/USD/EUR etc or null",
  "confidence_score": "0.0 to 1.0 based on data quality"
}

Rules:
- Extract ALL visible line items/products from the invoice detail
- For each item, extract description, quantity, unit price, total price and unit of measurement
- If no items are visible, use empty array [] for "items"
- For dates, use YYYY-MM-DD format
- For numbers, use numeric values without currency symbols
- Set confidence_score based on text clarity and completeness
- If no invoice data is found, set confidence_score to 0.0
- Return ONLY the JSON, no additional text or markdown`
