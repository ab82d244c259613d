package mysql

// -----------------------------------------------------------------------------
// CATALOG
// -----------------------------------------------------------------------------

const insertMenuItemSQL = `
INSERT INTO menu_items (id, name, category, diet_type, price)
VALUES (?, ?, ?, ?, ?)
`

const insertHotelSQL = `
INSERT INTO hotels (id, name, location, base_price_per_night)
VALUES (?, ?, ?, ?)
`

const getMenuItemSQL = `
SELECT id, name, price, category, diet_type
FROM menu_items
WHERE id = ?
`

// Category carries the location for room rates; the empty string fills DietType.
const getHotelSQL = `
SELECT id, name, base_price_per_night, location, ''
FROM hotels
WHERE id = ?
`

// Appended inside a transaction to take the entity's row lock.
const forUpdate = " FOR UPDATE"

const setMenuItemPriceSQL = `UPDATE menu_items SET price = ? WHERE id = ?`

const setHotelPriceSQL = `UPDATE hotels SET base_price_per_night = ? WHERE id = ?`

const insertRoomTypeSQL = `
INSERT INTO room_types (name, max_capacity, price_multiplier)
VALUES (?, ?, ?)
`

const insertRoomSQL = `
INSERT INTO rooms (hotel_id, room_number, room_type_id, status)
VALUES (?, ?, ?, ?)
`

const getRoomSQL = `
SELECT r.hotel_id, r.room_number, r.room_type_id, r.status,
       rt.id, rt.name, rt.max_capacity, rt.price_multiplier
FROM rooms r
JOIN room_types rt ON rt.id = r.room_type_id
WHERE r.hotel_id = ? AND r.room_number = ?
FOR UPDATE
`

const setRoomStatusSQL = `UPDATE rooms SET status = ? WHERE hotel_id = ? AND room_number = ?`

// -----------------------------------------------------------------------------
// DEPENDENT INDEX
// -----------------------------------------------------------------------------

// Both variants return (id, entity_id, quantity, multiplier, total) ordered by id.
const orderLinesByMenuItemSQL = `
SELECT id, menu_item_id, quantity, 1.00, subtotal
FROM order_lines
WHERE menu_item_id = ?
ORDER BY id
`

const bookingsByHotelSQL = `
SELECT b.id, b.hotel_id, b.total_nights, rt.price_multiplier, b.grand_total
FROM bookings b
JOIN rooms r       ON r.hotel_id = b.hotel_id AND r.room_number = b.room_number
JOIN room_types rt ON rt.id = r.room_type_id
WHERE b.hotel_id = ?
ORDER BY b.id
`

const setOrderLineSubtotalSQL = `UPDATE order_lines SET subtotal = ? WHERE id = ?`

const setBookingTotalSQL = `UPDATE bookings SET grand_total = ? WHERE id = ?`

// -----------------------------------------------------------------------------
// PLACEMENTS
// -----------------------------------------------------------------------------

const insertBookingSQL = `
INSERT INTO bookings
  (id, hotel_id, room_number, check_in_date, check_out_date, total_nights, grand_total, booked_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
`

const getBookingSQL = `
SELECT b.id, b.hotel_id, b.room_number, b.check_in_date, b.check_out_date,
       b.total_nights, b.grand_total, b.booked_at,
       h.name, rt.name
FROM bookings b
JOIN hotels h      ON h.id = b.hotel_id
JOIN rooms r       ON r.hotel_id = b.hotel_id AND r.room_number = b.room_number
JOIN room_types rt ON rt.id = r.room_type_id
WHERE b.id = ?
`

const insertOrderSQL = `
INSERT INTO food_orders (id, booking_id, status, ordered_at)
VALUES (?, ?, ?, ?)
`

const insertOrderLinesPrefix = "INSERT INTO order_lines (id, order_id, menu_item_id, quantity, subtotal) VALUES "

const getOrderSQL = `
SELECT id, booking_id, status, ordered_at
FROM food_orders
WHERE id = ?
`

const getOrderLinesSQL = `
SELECT id, order_id, menu_item_id, quantity, subtotal
FROM order_lines
WHERE order_id = ?
ORDER BY menu_item_id
`
